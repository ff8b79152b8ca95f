package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Email sends spike alerts over SMTP.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// NewEmail creates a new SMTP notifier.
func NewEmail(host string, port int, username, password, from string, to []string) *Email {
	if port == 0 {
		port = 587
	}
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(_ context.Context, a *SpikeAlert) error {
	subject := fmt.Sprintf("Trending Spike Alert: %s", a.Topic)
	body := fmt.Sprintf(
		"Spike detected for topic: %s (%s)\n"+
			"Current Popularity Score: %.2f\n"+
			"Average Recent Score: %.2f\n"+
			"Spike Factor: %.2fx\n\n"+
			"Link: %s\n"+
			"Time: %s\n",
		a.Topic, a.Source, a.CurrentScore, a.AvgRecentScore, a.SpikeFactor,
		linkOrNA(a.Link), a.Timestamp.UTC().Format(time.RFC3339))

	msg := strings.Join([]string{
		"From: " + e.from,
		"To: " + strings.Join(e.to, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	if err := smtp.SendMail(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func linkOrNA(link string) string {
	if link == "" {
		return "N/A"
	}
	return link
}
