package trend

import "github.com/elonfeng/trendpulse/pkg/feed"

// SpikeConfig controls the rolling-window spike check.
type SpikeConfig struct {
	WindowSize      int
	SpikeMultiplier float64
	MinScore        float64
}

// DefaultSpikeConfig returns the stock spike detection settings.
func DefaultSpikeConfig() SpikeConfig {
	return SpikeConfig{WindowSize: 4, SpikeMultiplier: 2, MinScore: 10}
}

// SpikeVerdict is the result of one spike check.
type SpikeVerdict struct {
	IsSpike        bool    `json:"is_spike"`
	CurrentScore   float64 `json:"current_score"`
	AvgRecentScore float64 `json:"avg_recent_score"`
	SpikeFactor    float64 `json:"spike_factor"`
	Reason         string  `json:"reason"`
}

// DetectSpike compares a current score against the mean of the most recent
// WindowSize samples. History is ordered oldest to newest. With fewer
// samples than the window the verdict is negative, never an error.
func DetectSpike(history []feed.Sample, currentScore float64, cfg SpikeConfig) SpikeVerdict {
	if cfg.WindowSize <= 0 {
		cfg = DefaultSpikeConfig()
	}

	if len(history) < cfg.WindowSize {
		return SpikeVerdict{
			IsSpike:      false,
			CurrentScore: currentScore,
			Reason:       "Not enough data points",
		}
	}

	recent := history[len(history)-cfg.WindowSize:]
	sum := 0.0
	for _, s := range recent {
		sum += s.Score
	}
	avg := sum / float64(len(recent))

	// Guard the zero-average case: any positive score counts as exceeding
	// the threshold, and the stored factor stays finite.
	factor := 0.0
	exceeds := false
	if avg == 0 {
		exceeds = currentScore > 0
	} else {
		factor = currentScore / avg
		exceeds = currentScore > avg*cfg.SpikeMultiplier
	}

	isSpike := exceeds && currentScore > cfg.MinScore

	reason := "No spike"
	if isSpike {
		reason = "Spike detected"
	}

	return SpikeVerdict{
		IsSpike:        isSpike,
		CurrentScore:   currentScore,
		AvgRecentScore: avg,
		SpikeFactor:    factor,
		Reason:         reason,
	}
}
