package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Spike    SpikeConfig    `yaml:"spike"`
	Grouping GroupingConfig `yaml:"grouping"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig holds the cron specs for ingestion and retention.
type ScheduleConfig struct {
	FetchSpec   string `yaml:"fetch_spec"`
	CleanupSpec string `yaml:"cleanup_spec"`
}

// FeedsConfig holds configuration for all feed clients.
type FeedsConfig struct {
	News      NewsConfig      `yaml:"news"`
	Forum     ForumConfig     `yaml:"forum"`
	Microblog MicroblogConfig `yaml:"microblog"`
}

// NewsConfig for the news feed client.
type NewsConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"base_url"`
	Topics  []string `yaml:"topics"`
}

// ForumConfig for the forum (Reddit) feed client. Topics maps a topic tag
// to the subreddits queried for it.
type ForumConfig struct {
	Enabled      bool                `yaml:"enabled"`
	ClientID     string              `yaml:"client_id"`
	ClientSecret string              `yaml:"client_secret"`
	Topics       map[string][]string `yaml:"topics"`
}

// MicroblogConfig for the microblog (Nitter RSS) feed client.
type MicroblogConfig struct {
	Enabled   bool     `yaml:"enabled"`
	NitterURL string   `yaml:"nitter_url"`
	Topics    []string `yaml:"topics"`
}

// SpikeConfig configures spike detection.
type SpikeConfig struct {
	WindowSize      int     `yaml:"window_size"`
	SpikeMultiplier float64 `yaml:"spike_multiplier"`
	MinScore        float64 `yaml:"min_score"`
}

// GroupingConfig configures the trailing window for grouping and retention.
type GroupingConfig struct {
	Window string `yaml:"window"`
}

// ParseWindow returns the grouping window as time.Duration.
func (g GroupingConfig) ParseWindow() time.Duration {
	d, err := time.ParseDuration(g.Window)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
	Email   EmailConfig   `yaml:"email"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// EmailConfig for SMTP alerts.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./trendpulse.db"},
		Schedule: ScheduleConfig{
			FetchSpec:   "*/30 * * * *",
			CleanupSpec: "0 2 * * *",
		},
		Feeds: FeedsConfig{
			News: NewsConfig{
				Enabled: true,
				Topics:  []string{"technology", "science", "business"},
			},
			Forum: ForumConfig{
				Enabled: false,
				Topics: map[string][]string{
					"technology": {"technology", "programming", "gadgets"},
					"science":    {"science", "askscience", "space"},
					"business":   {"business", "entrepreneur", "investing"},
				},
			},
			Microblog: MicroblogConfig{
				Enabled:   false,
				NitterURL: "https://nitter.net",
				Topics:    []string{"technology", "science", "business"},
			},
		},
		Spike: SpikeConfig{
			WindowSize:      4,
			SpikeMultiplier: 2,
			MinScore:        10,
		},
		Grouping: GroupingConfig{Window: "168h"},
		Alerts:   AlertsConfig{},
		Server:   ServerConfig{Port: 8080},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.Feeds.News.APIKey = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Feeds.Forum.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Feeds.Forum.ClientSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("ALERT_EMAIL_USER"); v != "" {
		cfg.Alerts.Email.Username = v
		cfg.Alerts.Email.From = v
	}
	if v := os.Getenv("ALERT_EMAIL_PASS"); v != "" {
		cfg.Alerts.Email.Password = v
	}
	if v := os.Getenv("ALERT_EMAIL_RECEIVER"); v != "" {
		cfg.Alerts.Email.To = []string{v}
		cfg.Alerts.Email.Enabled = true
	}
}

// EnabledTopics returns the distinct topic tags across all enabled feeds.
func EnabledTopics(feeds FeedsConfig) []string {
	seen := make(map[string]bool)
	var topics []string

	add := func(topic string) {
		if topic != "" && !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	if feeds.News.Enabled {
		for _, t := range feeds.News.Topics {
			add(t)
		}
	}
	if feeds.Forum.Enabled {
		for t := range feeds.Forum.Topics {
			add(t)
		}
	}
	if feeds.Microblog.Enabled {
		for _, t := range feeds.Microblog.Topics {
			add(t)
		}
	}
	return topics
}

// EnabledSubreddits returns the distinct subreddits the forum feed will
// query, empty when the forum feed is disabled.
func EnabledSubreddits(feeds FeedsConfig) []string {
	if !feeds.Forum.Enabled {
		return nil
	}

	seen := make(map[string]bool)
	var subreddits []string
	for topic, subs := range feeds.Forum.Topics {
		if len(subs) == 0 {
			subs = []string{topic}
		}
		for _, s := range subs {
			if !seen[s] {
				seen[s] = true
				subreddits = append(subreddits, s)
			}
		}
	}
	return subreddits
}
