package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elonfeng/trendpulse/internal/scheduler"
	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/alert"
	"github.com/elonfeng/trendpulse/pkg/feed"
	"github.com/elonfeng/trendpulse/pkg/trend"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "trendpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	aggregator := trend.NewAggregator(db, nil, alert.NewManager(nil),
		trend.DefaultSpikeConfig(), trend.DefaultWindow, zap.NewNop())
	sched := scheduler.New(aggregator, "", "", zap.NewNop())

	return New(db, aggregator, sched, 0, zap.NewNop()), db
}

func seedMention(t *testing.T, db *store.SQLiteStore, topic, title string, score float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.InsertMention(context.Background(), &feed.Mention{
		Topic:           topic,
		Source:          feed.SourceNews,
		Title:           title,
		Link:            "https://example.com/" + title,
		PopularityScore: score,
		PublishedAt:     now,
		CreatedAt:       now,
	}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleTrending(t *testing.T) {
	srv, db := newTestServer(t)
	seedMention(t, db, "technology", "apple iphone launch", 50)
	seedMention(t, db, "health", "flu season arrives early", 12)

	t.Run("returns grouped topics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleTrending(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trending", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 2, body["count"])
	})

	t.Run("limit applies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleTrending(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trending?limit=1", nil))

		assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
	})

	t.Run("rejects non-GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleTrending(rec, httptest.NewRequest(http.MethodPost, "/api/v1/trending", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleStats(t *testing.T) {
	srv, db := newTestServer(t)
	seedMention(t, db, "technology", "apple iphone launch", 50)

	rec := httptest.NewRecorder()
	srv.handleStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trending/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := decodeBody(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, data["totalTopics"])
}

func TestHandlePopularity(t *testing.T) {
	srv, db := newTestServer(t)
	require.NoError(t, db.AddSample(context.Background(), "technology", feed.SourceNews, 26, time.Now().UTC()))

	t.Run("requires topic and source", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handlePopularity(rec, httptest.NewRequest(http.MethodGet, "/api/v1/popularity?topic=technology", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns sample history", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handlePopularity(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/popularity?topic=technology&source=news", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
	})
}

func TestHandleSearch(t *testing.T) {
	srv, db := newTestServer(t)
	seedMention(t, db, "technology", "apple iphone launch", 50)

	t.Run("requires keyword", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleSearch(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("matches topic substring", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleSearch(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/search?keyword=tech&timeRange=week", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
	})

	t.Run("unknown time range falls back to day", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleSearch(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/search?keyword=tech&timeRange=fortnight", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHandleFetch(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("rejects GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleFetch(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fetch", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("accepts trigger", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleFetch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/fetch", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "triggered", decodeBody(t, rec)["status"])
	})
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["is_running"])
}
