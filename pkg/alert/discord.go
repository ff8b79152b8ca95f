package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discord sends spike alerts via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, a *SpikeAlert) error {
	description := fmt.Sprintf(
		"**Source:** %s\n**Current score:** %.1f\n**Recent average:** %.2f\n**Spike factor:** %.2fx",
		a.Source, a.CurrentScore, a.AvgRecentScore, a.SpikeFactor)
	if a.Link != "" {
		description += fmt.Sprintf("\n\n[%s](%s)", a.Title, a.Link)
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("🚨 Spike: %s", a.Topic),
		"description": description,
		"color":       0xFF6600,
		"timestamp":   a.Timestamp.UTC().Format(time.RFC3339),
	}

	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}
