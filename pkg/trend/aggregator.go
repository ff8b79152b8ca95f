package trend

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/alert"
	"github.com/elonfeng/trendpulse/pkg/feed"
)

// DefaultWindow is the trailing window bounding which mentions count as
// current, for both grouping and retention.
const DefaultWindow = 7 * 24 * time.Hour

// spikeHistoryLimit is how many recent samples feed each spike check.
const spikeHistoryLimit = 5

// Aggregator drives the ingestion pipeline and serves grouped read
// queries over the persisted snapshot.
type Aggregator struct {
	store    store.Store
	feeds    []feed.Feed
	alerts   *alert.Manager
	spikeCfg SpikeConfig
	window   time.Duration
	log      *zap.Logger
}

// NewAggregator creates a trending aggregator.
func NewAggregator(s store.Store, feeds []feed.Feed, alerts *alert.Manager, spikeCfg SpikeConfig, window time.Duration, log *zap.Logger) *Aggregator {
	if spikeCfg.WindowSize <= 0 {
		spikeCfg = DefaultSpikeConfig()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		store:    s,
		feeds:    feeds,
		alerts:   alerts,
		spikeCfg: spikeCfg,
		window:   window,
		log:      log,
	}
}

// IngestStats summarizes one ingestion cycle.
type IngestStats struct {
	Fetched int `json:"fetched"`
	New     int `json:"new"`
	Errors  int `json:"errors"`
}

// IngestAll runs one full ingestion cycle: fetch every feed (concurrently,
// failures isolated), then process mentions one at a time so each spike
// check sees a deterministic sample history. The only fatal condition is
// the store being unreachable at cycle start.
func (a *Aggregator) IngestAll(ctx context.Context) (IngestStats, error) {
	var stats IngestStats

	if err := a.store.Ping(ctx); err != nil {
		return stats, fmt.Errorf("store unreachable: %w", err)
	}

	mentions := a.fetchAll(ctx)
	stats.Fetched = len(mentions)

	for i := range mentions {
		isNew, err := a.ingestOne(ctx, &mentions[i])
		if err != nil {
			stats.Errors++
			a.log.Warn("mention ingest failed",
				zap.String("title", mentions[i].Title),
				zap.String("source", string(mentions[i].Source)),
				zap.Error(err))
			continue
		}
		if isNew {
			stats.New++
		}
	}

	a.log.Info("ingest cycle complete",
		zap.Int("fetched", stats.Fetched),
		zap.Int("new", stats.New),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

// fetchAll gathers mentions from every feed concurrently. A failing feed
// contributes an empty result set.
func (a *Aggregator) fetchAll(ctx context.Context) []feed.Mention {
	results := make([][]feed.Mention, len(a.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range a.feeds {
		i, f := i, f
		g.Go(func() error {
			mentions, err := f.Fetch(gctx)
			if err != nil {
				a.log.Warn("feed fetch failed",
					zap.String("feed", string(f.Name())), zap.Error(err))
				return nil
			}
			results[i] = mentions
			a.log.Info("feed fetched",
				zap.String("feed", string(f.Name())),
				zap.Int("mentions", len(mentions)))
			return nil
		})
	}
	_ = g.Wait()

	var all []feed.Mention
	for _, mentions := range results {
		all = append(all, mentions...)
	}
	return all
}

// ingestOne scores, dedupes, persists and spike-checks a single mention.
// A repeat sighting of a known mention is not an error: the mention record
// is skipped but a popularity sample is still appended and checked.
func (a *Aggregator) ingestOne(ctx context.Context, m *feed.Mention) (bool, error) {
	m.PopularityScore = Score(m.Metrics)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	exists, err := a.store.MentionExists(ctx, m.Title, m.Source, m.Link)
	if err != nil {
		return false, err
	}

	if !exists {
		if err := a.store.InsertMention(ctx, m); err != nil {
			return false, err
		}
	}

	now := time.Now().UTC()
	if err := a.store.AddSample(ctx, m.Topic, m.Source, m.PopularityScore, now); err != nil {
		return !exists, err
	}

	history, err := a.store.RecentSamples(ctx, m.Topic, m.Source, spikeHistoryLimit)
	if err != nil {
		return !exists, err
	}

	verdict := DetectSpike(history, m.PopularityScore, a.spikeCfg)
	if verdict.IsSpike && a.alerts != nil && a.alerts.HasNotifiers() {
		spike := &alert.SpikeAlert{
			Topic:          m.Topic,
			Source:         m.Source,
			Title:          m.Title,
			Link:           m.Link,
			CurrentScore:   verdict.CurrentScore,
			AvgRecentScore: verdict.AvgRecentScore,
			SpikeFactor:    verdict.SpikeFactor,
			Timestamp:      now,
		}
		if err := a.alerts.Broadcast(ctx, spike); err != nil {
			a.log.Warn("spike alert delivery failed",
				zap.String("topic", m.Topic), zap.Error(err))
		} else {
			a.log.Info("spike alert sent",
				zap.String("topic", m.Topic),
				zap.String("source", string(m.Source)),
				zap.Float64("factor", verdict.SpikeFactor))
		}
	}

	return !exists, nil
}

// Cleanup removes mentions and samples older than the trailing window.
func (a *Aggregator) Cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.window)
	mentions, samples, err := a.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	a.log.Info("retention sweep complete",
		zap.Int64("mentions_removed", mentions),
		zap.Int64("samples_removed", samples))
	return nil
}

// TrendingTopic is the API shape of one topic group: the seed mention's
// fields plus grouping information, with the combined score standing in
// as the popularity score.
type TrendingTopic struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	Topic           string           `json:"topic"`
	Source          feed.Source      `json:"source"`
	Link            string           `json:"link"`
	Summary         string           `json:"summary"`
	ImageURL        string           `json:"image_url,omitempty"`
	PublishedAt     time.Time        `json:"published_at"`
	CreatedAt       time.Time        `json:"created_at"`
	Metrics         feed.Metrics     `json:"metrics"`
	PopularityScore float64          `json:"popularity_score"`
	RelatedArticles []RelatedArticle `json:"related_articles"`
	TotalArticles   int              `json:"total_articles"`
	Sources         []feed.Source    `json:"sources"`
	LatestUpdate    time.Time        `json:"latest_update"`
}

// RelatedArticle is a non-seed group member in the API response.
type RelatedArticle struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Source          feed.Source  `json:"source"`
	Link            string       `json:"link"`
	Summary         string       `json:"summary"`
	ImageURL        string       `json:"image_url,omitempty"`
	PublishedAt     time.Time    `json:"published_at"`
	PopularityScore float64      `json:"popularity_score"`
	Metrics         feed.Metrics `json:"metrics"`
}

// TopicStats summarizes the current grouping state of the window.
type TopicStats struct {
	TotalTopics      int     `json:"totalTopics"`
	TotalGroups      int     `json:"totalGroups"`
	GroupedTopics    int     `json:"groupedTopics"`
	AverageGroupSize float64 `json:"averageGroupSize"`
	TopGroupSize     int     `json:"topGroupSize"`
}

// TrendingTopics pulls the in-window snapshot, groups it and shapes the
// top limit groups for display. Grouping runs on the snapshot without
// locks; results reflect a point in time.
func (a *Aggregator) TrendingTopics(ctx context.Context, limit int) ([]TrendingTopic, error) {
	if limit <= 0 {
		limit = 20
	}

	groups, err := a.groupWindow(ctx)
	if err != nil {
		return nil, err
	}

	if len(groups) > limit {
		groups = groups[:limit]
	}

	topics := make([]TrendingTopic, 0, len(groups))
	for _, g := range groups {
		related := make([]RelatedArticle, 0, len(g.Members))
		for _, m := range g.Members {
			related = append(related, RelatedArticle{
				ID:              m.ID,
				Title:           m.Title,
				Source:          m.Source,
				Link:            m.Link,
				Summary:         m.Summary,
				ImageURL:        m.ImageURL,
				PublishedAt:     m.PublishedAt,
				PopularityScore: m.PopularityScore,
				Metrics:         m.Metrics,
			})
		}

		topics = append(topics, TrendingTopic{
			ID:              g.Seed.ID,
			Title:           g.Seed.Title,
			Topic:           g.Seed.Topic,
			Source:          g.Seed.Source,
			Link:            g.Seed.Link,
			Summary:         g.Seed.Summary,
			ImageURL:        g.Seed.ImageURL,
			PublishedAt:     g.Seed.PublishedAt,
			CreatedAt:       g.Seed.CreatedAt,
			Metrics:         g.Seed.Metrics,
			PopularityScore: g.CombinedScore,
			RelatedArticles: related,
			TotalArticles:   g.TotalArticles,
			Sources:         g.Sources,
			LatestUpdate:    g.LatestTimestamp,
		})
	}
	return topics, nil
}

// Stats reports grouping statistics over the trailing window.
func (a *Aggregator) Stats(ctx context.Context) (TopicStats, error) {
	since := time.Now().UTC().Add(-a.window)

	total, err := a.store.CountMentions(ctx, since)
	if err != nil {
		return TopicStats{}, err
	}

	groups, err := a.groupWindow(ctx)
	if err != nil {
		return TopicStats{}, err
	}

	grouped := 0
	for _, g := range groups {
		grouped += g.TotalArticles
	}

	stats := TopicStats{
		TotalTopics:   total,
		TotalGroups:   len(groups),
		GroupedTopics: grouped,
	}
	if len(groups) > 0 {
		avg := float64(grouped) / float64(len(groups))
		stats.AverageGroupSize = math.Round(avg*10) / 10
		stats.TopGroupSize = groups[0].TotalArticles
	}
	return stats, nil
}

func (a *Aggregator) groupWindow(ctx context.Context) ([]TopicGroup, error) {
	since := time.Now().UTC().Add(-a.window)
	mentions, err := a.store.ListMentions(ctx, store.ListOpts{Since: since})
	if err != nil {
		return nil, fmt.Errorf("load window snapshot: %w", err)
	}
	return Group(mentions), nil
}
