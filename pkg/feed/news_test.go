package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))

		switch r.URL.Query().Get("q") {
		case "technology":
			w.Write([]byte(`{"articles":[
				{"title":"Apple unveils new iPhone","url":"https://example.com/a1",
				 "description":"launch event","urlToImage":"https://example.com/a1.jpg",
				 "publishedAt":"2026-08-20T10:00:00Z"},
				{"title":"","url":"https://example.com/a2"}
			]}`))
		case "science":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	n := NewNews(srv.URL, "secret", []string{"technology", "science"}, zap.NewNop())
	mentions, err := n.Fetch(context.Background())

	require.NoError(t, err, "a failing topic must not fail the whole fetch")
	require.Len(t, mentions, 1, "untitled articles are dropped")

	m := mentions[0]
	assert.Equal(t, "technology", m.Topic)
	assert.Equal(t, SourceNews, m.Source)
	assert.Equal(t, "Apple unveils new iPhone", m.Title)
	assert.Equal(t, "https://example.com/a1", m.Link)
	assert.Equal(t, "launch event", m.Summary)
	assert.Equal(t, "https://example.com/a1.jpg", m.ImageURL)
	assert.Equal(t, Metrics{}, m.Metrics, "news articles carry no engagement counters")
	assert.False(t, m.PublishedAt.IsZero())
	assert.False(t, m.CreatedAt.IsZero())
}

func TestNewsFetchEmptyTopics(t *testing.T) {
	n := NewNews("http://unused.invalid", "key", nil, zap.NewNop())
	mentions, err := n.Fetch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, mentions)
}

func TestMicroblogFetch(t *testing.T) {
	var nitterURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/rss", r.URL.Path)
		assert.Equal(t, "q=quantum+computing", r.URL.RawQuery)

		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>search results</title>
    <item>
      <title>big quantum computing news</title>
      <link>` + nitterURL + `/someone/status/123</link>
      <description>a breakthrough thread</description>
      <pubDate>Thu, 20 Aug 2026 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`))
	}))
	defer srv.Close()
	nitterURL = srv.URL

	m := NewMicroblog(srv.URL, []string{"quantum computing"}, zap.NewNop())
	mentions, err := m.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "quantum computing", mentions[0].Topic)
	assert.Equal(t, SourceMicroblog, mentions[0].Source)
	assert.Equal(t, "big quantum computing news", mentions[0].Title)
	assert.Equal(t, "https://x.com/someone/status/123", mentions[0].Link,
		"mirror links are rewritten to the upstream site")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "truncated ...", truncate("truncated far beyond", 10))
}
