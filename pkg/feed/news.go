package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const defaultNewsBaseURL = "https://newsapi.org"

// News fetches headline mentions from a NewsAPI-compatible endpoint,
// one query per configured topic tag. News articles carry no native
// engagement counters, so their metrics are all zero.
type News struct {
	client  *http.Client
	log     *zap.Logger
	baseURL string
	apiKey  string
	topics  []string
	perPage int
}

// NewNews creates a news feed client.
func NewNews(baseURL, apiKey string, topics []string, log *zap.Logger) *News {
	if baseURL == "" {
		baseURL = defaultNewsBaseURL
	}
	return &News{
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
		baseURL: baseURL,
		apiKey:  apiKey,
		topics:  topics,
		perPage: 10,
	}
}

func (n *News) Name() Source { return SourceNews }

// Fetch queries the everything endpoint for each topic. A failing topic
// query is logged and skipped; the remaining topics still contribute.
func (n *News) Fetch(ctx context.Context) ([]Mention, error) {
	var all []Mention
	for _, topic := range n.topics {
		mentions, err := n.fetchTopic(ctx, topic)
		if err != nil {
			n.log.Warn("news topic fetch failed",
				zap.String("topic", topic), zap.Error(err))
			continue
		}
		all = append(all, mentions...)
	}
	return all, nil
}

func (n *News) fetchTopic(ctx context.Context, topic string) ([]Mention, error) {
	reqURL := fmt.Sprintf("%s/v2/everything?q=%s&pageSize=%d&sortBy=publishedAt&apiKey=%s",
		n.baseURL, url.QueryEscape(topic), n.perPage, n.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create news request %q: %w", topic, err)
	}
	req.Header.Set("User-Agent", "trendpulse/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch news %q: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news %q status %d", topic, resp.StatusCode)
	}

	var payload struct {
		Articles []struct {
			Title       string    `json:"title"`
			URL         string    `json:"url"`
			Description string    `json:"description"`
			URLToImage  string    `json:"urlToImage"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode news %q: %w", topic, err)
	}

	now := time.Now().UTC()
	mentions := make([]Mention, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if a.Title == "" {
			continue
		}
		published := a.PublishedAt
		if published.IsZero() {
			published = now
		}
		mentions = append(mentions, Mention{
			Topic:       topic,
			Source:      SourceNews,
			Title:       a.Title,
			Link:        a.URL,
			Summary:     a.Description,
			ImageURL:    a.URLToImage,
			PublishedAt: published.UTC(),
			CreatedAt:   now,
		})
	}
	return mentions, nil
}
