package trend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/alert"
	"github.com/elonfeng/trendpulse/pkg/feed"
)

type stubStore struct {
	pingErr   error
	insertErr error

	existing map[string]bool
	inserted []feed.Mention
	samples  []feed.Sample
	history  []feed.Sample
	window   []feed.Mention
}

func newStubStore() *stubStore {
	return &stubStore{existing: make(map[string]bool)}
}

func identityKey(title string, source feed.Source, link string) string {
	return title + "|" + string(source) + "|" + link
}

func (s *stubStore) Ping(context.Context) error { return s.pingErr }

func (s *stubStore) InsertMention(_ context.Context, m *feed.Mention) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	m.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *m)
	s.existing[identityKey(m.Title, m.Source, m.Link)] = true
	return nil
}

func (s *stubStore) MentionExists(_ context.Context, title string, source feed.Source, link string) (bool, error) {
	return s.existing[identityKey(title, source, link)], nil
}

func (s *stubStore) ListMentions(context.Context, store.ListOpts) ([]feed.Mention, error) {
	return s.window, nil
}

func (s *stubStore) CountMentions(context.Context, time.Time) (int, error) {
	return len(s.window), nil
}

func (s *stubStore) SearchMentions(context.Context, string, time.Time) ([]feed.Mention, error) {
	return nil, nil
}

func (s *stubStore) AddSample(_ context.Context, topic string, source feed.Source, score float64, ts time.Time) error {
	s.samples = append(s.samples, feed.Sample{Topic: topic, Source: source, Score: score, Timestamp: ts})
	return nil
}

func (s *stubStore) RecentSamples(context.Context, string, feed.Source, int) ([]feed.Sample, error) {
	return s.history, nil
}

func (s *stubStore) SampleHistory(context.Context, string, feed.Source) ([]feed.Sample, error) {
	return s.history, nil
}

func (s *stubStore) DeleteOlderThan(context.Context, time.Time) (int64, int64, error) {
	return 0, 0, nil
}

func (s *stubStore) Close() error { return nil }

type stubFeed struct {
	name     feed.Source
	mentions []feed.Mention
	err      error
}

func (f *stubFeed) Name() feed.Source { return f.name }

func (f *stubFeed) Fetch(context.Context) ([]feed.Mention, error) {
	return f.mentions, f.err
}

type stubNotifier struct {
	alerts []*alert.SpikeAlert
	err    error
}

func (n *stubNotifier) Name() string { return "stub" }

func (n *stubNotifier) Send(_ context.Context, a *alert.SpikeAlert) error {
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, a)
	return nil
}

func newTestAggregator(s store.Store, feeds []feed.Feed, notifier alert.Notifier) *Aggregator {
	var mgr *alert.Manager
	if notifier != nil {
		mgr = alert.NewManager([]alert.Notifier{notifier})
	} else {
		mgr = alert.NewManager(nil)
	}
	return NewAggregator(s, feeds, mgr, DefaultSpikeConfig(), DefaultWindow, zap.NewNop())
}

func TestIngestAllNewMention(t *testing.T) {
	db := newStubStore()
	f := &stubFeed{name: feed.SourceNews, mentions: []feed.Mention{
		{Topic: "technology", Source: feed.SourceNews, Title: "apple iphone launch", Link: "l1",
			Metrics: feed.Metrics{Upvotes: 10, Comments: 5, Shares: 2}},
	}}

	agg := newTestAggregator(db, []feed.Feed{f}, nil)
	stats, err := agg.IngestAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.New)
	assert.Zero(t, stats.Errors)

	require.Len(t, db.inserted, 1)
	assert.InDelta(t, 26, db.inserted[0].PopularityScore, 1e-9)
	require.Len(t, db.samples, 1)
	assert.InDelta(t, 26, db.samples[0].Score, 1e-9)
}

func TestIngestAllDuplicateStillSampled(t *testing.T) {
	db := newStubStore()
	db.existing[identityKey("apple iphone launch", feed.SourceNews, "l1")] = true

	f := &stubFeed{name: feed.SourceNews, mentions: []feed.Mention{
		{Topic: "technology", Source: feed.SourceNews, Title: "apple iphone launch", Link: "l1",
			Metrics: feed.Metrics{Upvotes: 10}},
	}}

	agg := newTestAggregator(db, []feed.Feed{f}, nil)
	stats, err := agg.IngestAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)
	assert.Zero(t, stats.New)
	assert.Empty(t, db.inserted, "known mention must not be re-inserted")
	assert.Len(t, db.samples, 1, "repeat sighting still records a sample")
}

func TestIngestAllSpikeAlert(t *testing.T) {
	db := newStubStore()
	db.history = samplesFromScores(10, 12, 11, 9)

	notifier := &stubNotifier{}
	f := &stubFeed{name: feed.SourceForum, mentions: []feed.Mention{
		{Topic: "technology", Source: feed.SourceForum, Title: "huge spike thread", Link: "l1",
			Metrics: feed.Metrics{Upvotes: 50}},
	}}

	agg := newTestAggregator(db, []feed.Feed{f}, notifier)
	_, err := agg.IngestAll(context.Background())

	require.NoError(t, err)
	require.Len(t, notifier.alerts, 1)
	a := notifier.alerts[0]
	assert.Equal(t, "technology", a.Topic)
	assert.Equal(t, feed.SourceForum, a.Source)
	assert.InDelta(t, 50, a.CurrentScore, 1e-9)
	assert.InDelta(t, 10.5, a.AvgRecentScore, 1e-9)
	assert.InDelta(t, 4.7619, a.SpikeFactor, 1e-3)
}

func TestIngestAllNoAlertWithoutEnoughHistory(t *testing.T) {
	db := newStubStore()
	db.history = samplesFromScores(10, 12)

	notifier := &stubNotifier{}
	f := &stubFeed{name: feed.SourceForum, mentions: []feed.Mention{
		{Topic: "technology", Source: feed.SourceForum, Title: "huge spike thread", Link: "l1",
			Metrics: feed.Metrics{Upvotes: 500}},
	}}

	agg := newTestAggregator(db, []feed.Feed{f}, notifier)
	_, err := agg.IngestAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, notifier.alerts)
}

func TestIngestAllFeedFailureIsolated(t *testing.T) {
	db := newStubStore()
	broken := &stubFeed{name: feed.SourceNews, err: errors.New("upstream 500")}
	healthy := &stubFeed{name: feed.SourceForum, mentions: []feed.Mention{
		{Topic: "technology", Source: feed.SourceForum, Title: "still works", Link: "l1"},
	}}

	agg := newTestAggregator(db, []feed.Feed{broken, healthy}, nil)
	stats, err := agg.IngestAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.New)
}

func TestIngestAllPersistFailureCounted(t *testing.T) {
	db := newStubStore()
	db.insertErr = errors.New("disk full")

	f := &stubFeed{name: feed.SourceNews, mentions: []feed.Mention{
		{Topic: "technology", Source: feed.SourceNews, Title: "first", Link: "l1"},
		{Topic: "technology", Source: feed.SourceNews, Title: "second", Link: "l2"},
	}}

	agg := newTestAggregator(db, []feed.Feed{f}, nil)
	stats, err := agg.IngestAll(context.Background())

	require.NoError(t, err, "per-item failures must not abort the batch")
	assert.Equal(t, 2, stats.Fetched)
	assert.Zero(t, stats.New)
	assert.Equal(t, 2, stats.Errors)
}

func TestIngestAllStoreUnreachableIsFatal(t *testing.T) {
	db := newStubStore()
	db.pingErr = errors.New("connection refused")

	agg := newTestAggregator(db, nil, nil)
	_, err := agg.IngestAll(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "store unreachable")
}

func TestTrendingTopicsShaping(t *testing.T) {
	db := newStubStore()
	db.window = []feed.Mention{
		mention("technology", feed.SourceNews, "apple iphone launch", "l1", 50),
		mention("technology", feed.SourceForum, "apple iphone event", "l2", 30),
		mention("health", feed.SourceMicroblog, "flu season arrives early", "l3", 12),
	}

	agg := newTestAggregator(db, nil, nil)
	topics, err := agg.TrendingTopics(context.Background(), 20)

	require.NoError(t, err)
	require.Len(t, topics, 2)

	top := topics[0]
	assert.Equal(t, "apple iphone launch", top.Title)
	assert.Equal(t, 2, top.TotalArticles)
	require.Len(t, top.RelatedArticles, 1)
	assert.Equal(t, "apple iphone event", top.RelatedArticles[0].Title)
	assert.Greater(t, top.PopularityScore, 80.0, "combined score includes the grouping bonus")
	assert.ElementsMatch(t, []feed.Source{feed.SourceNews, feed.SourceForum}, top.Sources)
}

func TestTrendingTopicsLimit(t *testing.T) {
	db := newStubStore()
	db.window = []feed.Mention{
		mention("a", feed.SourceNews, "one unique subject here", "l1", 10),
		mention("b", feed.SourceNews, "another distinct matter entirely", "l2", 90),
		mention("c", feed.SourceNews, "third separate storyline unfolds", "l3", 40),
	}

	agg := newTestAggregator(db, nil, nil)
	topics, err := agg.TrendingTopics(context.Background(), 2)

	require.NoError(t, err)
	assert.Len(t, topics, 2)
}

func TestStats(t *testing.T) {
	db := newStubStore()
	db.window = []feed.Mention{
		mention("technology", feed.SourceNews, "apple iphone launch", "l1", 50),
		mention("technology", feed.SourceForum, "apple iphone event", "l2", 30),
		mention("health", feed.SourceMicroblog, "flu season arrives early", "l3", 12),
	}

	agg := newTestAggregator(db, nil, nil)
	stats, err := agg.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTopics)
	assert.Equal(t, 2, stats.TotalGroups)
	assert.Equal(t, 3, stats.GroupedTopics)
	assert.InDelta(t, 1.5, stats.AverageGroupSize, 1e-9)
	assert.Equal(t, 2, stats.TopGroupSize)
}

func TestStatsEmptyWindow(t *testing.T) {
	agg := newTestAggregator(newStubStore(), nil, nil)
	stats, err := agg.Stats(context.Background())

	require.NoError(t, err)
	assert.Zero(t, stats.TotalGroups)
	assert.Zero(t, stats.AverageGroupSize)
	assert.Zero(t, stats.TopGroupSize)
}
