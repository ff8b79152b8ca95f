package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Forum fetches top posts from Reddit subreddits, mapping each configured
// topic to one or more subreddits.
type Forum struct {
	client       *http.Client
	log          *zap.Logger
	clientID     string
	clientSecret string
	// topic -> subreddits to query for it
	topics map[string][]string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewForum creates a forum feed client using Reddit's client-credentials flow.
func NewForum(clientID, clientSecret string, topics map[string][]string, log *zap.Logger) *Forum {
	return &Forum{
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log,
		clientID:     clientID,
		clientSecret: clientSecret,
		topics:       topics,
	}
}

func (f *Forum) Name() Source { return SourceForum }

// Fetch collects the day's top posts for every configured topic. A failing
// subreddit is logged and skipped.
func (f *Forum) Fetch(ctx context.Context) ([]Mention, error) {
	if err := f.authenticate(ctx); err != nil {
		return nil, fmt.Errorf("forum auth: %w", err)
	}

	var all []Mention
	for topic, subreddits := range f.topics {
		if len(subreddits) == 0 {
			subreddits = []string{topic}
		}
		for _, sub := range subreddits {
			mentions, err := f.fetchSubreddit(ctx, sub, topic)
			if err != nil {
				f.log.Warn("forum subreddit fetch failed",
					zap.String("subreddit", sub), zap.Error(err))
				continue
			}
			all = append(all, mentions...)
		}
	}
	return all, nil
}

func (f *Forum) authenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && time.Now().Before(f.tokenExpiry) {
		return nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://www.reddit.com/api/v1/access_token",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}

	req.SetBasicAuth(f.clientID, f.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "trendpulse/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forum token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("forum auth status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode forum token: %w", err)
	}

	f.token = tokenResp.AccessToken
	f.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return nil
}

func (f *Forum) fetchSubreddit(ctx context.Context, subreddit, topic string) ([]Mention, error) {
	reqURL := fmt.Sprintf("https://oauth.reddit.com/r/%s/top.json?t=day&limit=5", subreddit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("User-Agent", "trendpulse/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forum r/%s status %d", subreddit, resp.StatusCode)
	}

	var listing forumListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", subreddit, err)
	}

	now := time.Now().UTC()
	var mentions []Mention
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied {
			continue
		}

		mentions = append(mentions, Mention{
			Topic:       topic,
			Source:      SourceForum,
			Title:       post.Title,
			Link:        "https://reddit.com" + post.Permalink,
			Summary:     truncate(post.Selftext, 200),
			PublishedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
			CreatedAt:   now,
			Metrics: Metrics{
				Upvotes:     post.Ups,
				Comments:    post.NumComments,
				UpvoteRatio: post.UpvoteRatio,
				RawScore:    float64(post.Score),
			},
		})
	}
	return mentions, nil
}

type forumListing struct {
	Data struct {
		Children []struct {
			Data forumPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type forumPost struct {
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext"`
	Ups         int     `json:"ups"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	Stickied    bool    `json:"stickied"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
