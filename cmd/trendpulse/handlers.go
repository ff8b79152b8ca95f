package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/trendpulse/internal/config"
	"github.com/elonfeng/trendpulse/internal/logging"
	"github.com/elonfeng/trendpulse/internal/scheduler"
	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/alert"
	"github.com/elonfeng/trendpulse/pkg/feed"
	"github.com/elonfeng/trendpulse/pkg/server"
	"github.com/elonfeng/trendpulse/pkg/trend"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildFeeds(cfg *config.Config, log *zap.Logger) []feed.Feed {
	var feeds []feed.Feed

	if cfg.Feeds.News.Enabled {
		feeds = append(feeds, feed.NewNews(
			cfg.Feeds.News.BaseURL,
			cfg.Feeds.News.APIKey,
			cfg.Feeds.News.Topics,
			log.Named("news"),
		))
	}
	if cfg.Feeds.Forum.Enabled {
		feeds = append(feeds, feed.NewForum(
			cfg.Feeds.Forum.ClientID,
			cfg.Feeds.Forum.ClientSecret,
			cfg.Feeds.Forum.Topics,
			log.Named("forum"),
		))
	}
	if cfg.Feeds.Microblog.Enabled {
		feeds = append(feeds, feed.NewMicroblog(
			cfg.Feeds.Microblog.NitterURL,
			cfg.Feeds.Microblog.Topics,
			log.Named("microblog"),
		))
	}

	return feeds
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}
	if cfg.Alerts.Email.Enabled && cfg.Alerts.Email.Host != "" {
		notifiers = append(notifiers, alert.NewEmail(
			cfg.Alerts.Email.Host,
			cfg.Alerts.Email.Port,
			cfg.Alerts.Email.Username,
			cfg.Alerts.Email.Password,
			cfg.Alerts.Email.From,
			cfg.Alerts.Email.To,
		))
	}

	return alert.NewManager(notifiers)
}

func buildAggregator(cfg *config.Config, db store.Store, feeds []feed.Feed, log *zap.Logger) *trend.Aggregator {
	spikeCfg := trend.SpikeConfig{
		WindowSize:      cfg.Spike.WindowSize,
		SpikeMultiplier: cfg.Spike.SpikeMultiplier,
		MinScore:        cfg.Spike.MinScore,
	}
	return trend.NewAggregator(db, feeds, buildAlertManager(cfg), spikeCfg,
		cfg.Grouping.ParseWindow(), log.Named("aggregator"))
}

func runFetch() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	aggregator := buildAggregator(cfg, db, buildFeeds(cfg, log), log)

	ctx := context.Background()
	if err := aggregator.Cleanup(ctx); err != nil {
		log.Warn("cleanup failed", zap.Error(err))
	}

	stats, err := aggregator.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Fprintf(os.Stderr, "fetched %d mentions (%d new, %d errors)\n",
		stats.Fetched, stats.New, stats.Errors)
	return nil
}

func runTrending(jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	aggregator := buildAggregator(cfg, db, nil, log)

	topics, err := aggregator.TrendingTopics(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("trending topics: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(topics)
	}

	if len(topics) == 0 {
		fmt.Println("no trending topics found (try ingesting data first: trendpulse fetch)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tARTICLES\tSOURCES\tTITLE\tLATEST UPDATE")
	for _, t := range topics {
		fmt.Fprintf(w, "%.1f\t%d\t%d\t%s\t%s\n",
			t.PopularityScore, t.TotalArticles, len(t.Sources), t.Title,
			t.LatestUpdate.Format(time.RFC3339))
	}
	return w.Flush()
}

func runServe(port int) error {
	return serve(port, false)
}

func runDaemon(port int) error {
	return serve(port, true)
}

func serve(port int, withScheduler bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	aggregator := buildAggregator(cfg, db, buildFeeds(cfg, log), log)
	sched := scheduler.New(aggregator,
		cfg.Schedule.FetchSpec, cfg.Schedule.CleanupSpec, log.Named("scheduler"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if withScheduler {
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("scheduler error", zap.Error(err))
			}
		}()
	}

	srv := server.New(db, aggregator, sched, port, log.Named("server"))
	return srv.ListenAndServe()
}
