package feed

import (
	"context"
	"time"
)

// Source identifies which kind of feed a mention came from.
type Source string

const (
	SourceNews      Source = "news"
	SourceForum     Source = "forum"
	SourceMicroblog Source = "microblog"
)

// Metrics holds the raw engagement counters attached to a mention.
// UpvoteRatio and RawScore are carried from the source but never
// enter the popularity score.
type Metrics struct {
	Likes       int     `json:"likes"`
	Retweets    int     `json:"retweets"`
	Replies     int     `json:"replies"`
	Upvotes     int     `json:"upvotes"`
	Comments    int     `json:"comments"`
	Views       int     `json:"views"`
	Shares      int     `json:"shares"`
	UpvoteRatio float64 `json:"upvote_ratio,omitempty"`
	RawScore    float64 `json:"raw_score,omitempty"`
}

// Mention is one observed occurrence of a topic from one source feed.
// Identity for deduplication is (Title, Source, Link).
type Mention struct {
	ID              int64     `json:"id" db:"id"`
	Topic           string    `json:"topic" db:"topic"`
	Source          Source    `json:"source" db:"source"`
	Title           string    `json:"title" db:"title"`
	Link            string    `json:"link" db:"link"`
	Summary         string    `json:"summary" db:"summary"`
	ImageURL        string    `json:"image_url,omitempty" db:"image_url"`
	PublishedAt     time.Time `json:"published_at" db:"published_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	PopularityScore float64   `json:"popularity_score" db:"popularity_score"`
	Metrics         Metrics   `json:"metrics" db:"-"`
	MetricsJSON     string    `json:"-" db:"metrics"`
}

// Sample is one append-only popularity observation for a (topic, source) pair.
type Sample struct {
	ID        int64     `json:"id" db:"id"`
	Topic     string    `json:"topic" db:"topic"`
	Source    Source    `json:"source" db:"source"`
	Score     float64   `json:"score" db:"score"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Feed is the interface every fetch client must implement.
type Feed interface {
	Name() Source
	Fetch(ctx context.Context) ([]Mention, error)
}

// AllSources returns all known source kinds.
func AllSources() []Source {
	return []Source{SourceNews, SourceForum, SourceMicroblog}
}
