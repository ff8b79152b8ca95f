package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// Microblog fetches recent posts for configured topics via a Nitter
// instance's RSS search feeds.
type Microblog struct {
	client    *http.Client
	parser    *gofeed.Parser
	log       *zap.Logger
	nitterURL string
	topics    []string
}

// NewMicroblog creates a microblog feed client backed by Nitter RSS.
func NewMicroblog(nitterURL string, topics []string, log *zap.Logger) *Microblog {
	if nitterURL == "" {
		nitterURL = "https://nitter.net"
	}
	return &Microblog{
		client:    &http.Client{Timeout: 30 * time.Second},
		parser:    gofeed.NewParser(),
		log:       log,
		nitterURL: strings.TrimRight(nitterURL, "/"),
		topics:    topics,
	}
}

func (m *Microblog) Name() Source { return SourceMicroblog }

// Fetch runs one search feed per topic. A failing topic is logged and
// skipped.
func (m *Microblog) Fetch(ctx context.Context) ([]Mention, error) {
	var all []Mention
	for _, topic := range m.topics {
		mentions, err := m.fetchTopic(ctx, topic)
		if err != nil {
			m.log.Warn("microblog topic fetch failed",
				zap.String("topic", topic), zap.Error(err))
			continue
		}
		all = append(all, mentions...)
	}
	return all, nil
}

func (m *Microblog) fetchTopic(ctx context.Context, topic string) ([]Mention, error) {
	feedURL := fmt.Sprintf("%s/search/rss?q=%s", m.nitterURL, strings.ReplaceAll(topic, " ", "+"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create microblog request %q: %w", topic, err)
	}
	req.Header.Set("User-Agent", "trendpulse/1.0")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch microblog %q: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("microblog %q status %d", topic, resp.StatusCode)
	}

	parsed, err := m.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse microblog %q: %w", topic, err)
	}

	now := time.Now().UTC()
	var mentions []Mention
	for _, entry := range parsed.Items {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		}

		// Point links back at the upstream site rather than the mirror.
		link := strings.Replace(entry.Link, m.nitterURL, "https://x.com", 1)

		mentions = append(mentions, Mention{
			Topic:       topic,
			Source:      SourceMicroblog,
			Title:       truncate(entry.Title, 280),
			Link:        link,
			Summary:     truncate(entry.Description, 500),
			PublishedAt: published,
			CreatedAt:   now,
		})
	}
	return mentions, nil
}
