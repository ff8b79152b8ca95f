package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/trendpulse/pkg/feed"
)

// ListOpts controls mention listing.
type ListOpts struct {
	Source feed.Source
	Since  time.Time
	Limit  int
}

// Store is the persistence contract for mentions and popularity samples.
type Store interface {
	Ping(ctx context.Context) error

	InsertMention(ctx context.Context, m *feed.Mention) error
	MentionExists(ctx context.Context, title string, source feed.Source, link string) (bool, error)
	ListMentions(ctx context.Context, opts ListOpts) ([]feed.Mention, error)
	CountMentions(ctx context.Context, since time.Time) (int, error)
	SearchMentions(ctx context.Context, keyword string, since time.Time) ([]feed.Mention, error)

	AddSample(ctx context.Context, topic string, source feed.Source, score float64, ts time.Time) error
	RecentSamples(ctx context.Context, topic string, source feed.Source, limit int) ([]feed.Sample, error)
	SampleHistory(ctx context.Context, topic string, source feed.Source) ([]feed.Sample, error)

	DeleteOlderThan(ctx context.Context, cutoff time.Time) (mentions, samples int64, err error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) InsertMention(ctx context.Context, m *feed.Mention) error {
	metricsJSON, _ := json.Marshal(m.Metrics)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mentions (topic, source, title, link, summary, image_url, metrics, popularity_score, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Topic, m.Source, m.Title, m.Link, m.Summary, m.ImageURL,
		string(metricsJSON), m.PopularityScore, m.PublishedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert mention %q: %w", m.Title, err)
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) MentionExists(ctx context.Context, title string, source feed.Source, link string) (bool, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM mentions WHERE title = ? AND source = ? AND link = ?",
		title, source, link)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check mention %q: %w", title, err)
	}
	return true, nil
}

func (s *SQLiteStore) ListMentions(ctx context.Context, opts ListOpts) ([]feed.Mention, error) {
	builder := sq.Select("*").From("mentions")

	if opts.Source != "" {
		builder = builder.Where(sq.Eq{"source": opts.Source})
	}
	if !opts.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"created_at": opts.Since})
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 2000
	}
	builder = builder.OrderBy("popularity_score DESC").Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	var mentions []feed.Mention
	if err := s.db.SelectContext(ctx, &mentions, query, args...); err != nil {
		return nil, fmt.Errorf("list mentions: %w", err)
	}

	decodeMetrics(mentions)
	return mentions, nil
}

func (s *SQLiteStore) CountMentions(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM mentions WHERE created_at >= ?", since)
	if err != nil {
		return 0, fmt.Errorf("count mentions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) SearchMentions(ctx context.Context, keyword string, since time.Time) ([]feed.Mention, error) {
	// SQLite LIKE is case-insensitive for ASCII, which gives the
	// case-insensitive topic match the API promises.
	query, args, err := sq.Select("*").From("mentions").
		Where(sq.Like{"topic": "%" + keyword + "%"}).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("popularity_score DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	var mentions []feed.Mention
	if err := s.db.SelectContext(ctx, &mentions, query, args...); err != nil {
		return nil, fmt.Errorf("search mentions %q: %w", keyword, err)
	}

	decodeMetrics(mentions)
	return mentions, nil
}

func (s *SQLiteStore) AddSample(ctx context.Context, topic string, source feed.Source, score float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO popularity_samples (topic, source, score, timestamp)
		VALUES (?, ?, ?, ?)
	`, topic, source, score, ts)
	if err != nil {
		return fmt.Errorf("add sample %s/%s: %w", topic, source, err)
	}
	return nil
}

// RecentSamples returns the last limit samples for a (topic, source) pair,
// ordered oldest to newest.
func (s *SQLiteStore) RecentSamples(ctx context.Context, topic string, source feed.Source, limit int) ([]feed.Sample, error) {
	var samples []feed.Sample
	err := s.db.SelectContext(ctx, &samples, `
		SELECT * FROM popularity_samples
		WHERE topic = ? AND source = ?
		ORDER BY timestamp DESC LIMIT ?
	`, topic, source, limit)
	if err != nil {
		return nil, fmt.Errorf("recent samples %s/%s: %w", topic, source, err)
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

func (s *SQLiteStore) SampleHistory(ctx context.Context, topic string, source feed.Source) ([]feed.Sample, error) {
	var samples []feed.Sample
	err := s.db.SelectContext(ctx, &samples, `
		SELECT * FROM popularity_samples
		WHERE topic = ? AND source = ?
		ORDER BY timestamp
	`, topic, source)
	if err != nil {
		return nil, fmt.Errorf("sample history %s/%s: %w", topic, source, err)
	}
	return samples, nil
}

// DeleteOlderThan removes mentions and samples past the retention cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mentions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("delete old mentions: %w", err)
	}
	mentions, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, "DELETE FROM popularity_samples WHERE timestamp < ?", cutoff)
	if err != nil {
		return mentions, 0, fmt.Errorf("delete old samples: %w", err)
	}
	samples, _ := res.RowsAffected()

	return mentions, samples, nil
}

func decodeMetrics(mentions []feed.Mention) {
	for i := range mentions {
		json.Unmarshal([]byte(mentions[i].MetricsJSON), &mentions[i].Metrics)
	}
}
