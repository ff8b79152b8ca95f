package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/trendpulse/pkg/feed"
)

// SpikeAlert is the payload delivered when a topic's popularity spikes.
type SpikeAlert struct {
	Topic          string      `json:"topic"`
	Source         feed.Source `json:"source"`
	Title          string      `json:"title"`
	Link           string      `json:"link"`
	CurrentScore   float64     `json:"current_score"`
	AvgRecentScore float64     `json:"avg_recent_score"`
	SpikeFactor    float64     `json:"spike_factor"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Notifier delivers spike alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a *SpikeAlert) error
}

// Manager broadcasts spike alerts to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends an alert to every registered notifier. Individual
// delivery failures are joined, not short-circuited.
func (m *Manager) Broadcast(ctx context.Context, a *SpikeAlert) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
