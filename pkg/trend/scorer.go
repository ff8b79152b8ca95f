package trend

import "github.com/elonfeng/trendpulse/pkg/feed"

// scoreFloor guarantees every mention carries a strictly positive,
// comparable score and keeps spike-factor division safe downstream.
const scoreFloor = 0.1

// Score converts raw engagement counters into a scalar popularity score.
// It is a pure function of the metrics: no wall clock, no decay.
//
// Comments and replies indicate deeper engagement (x2), shares and
// retweets indicate viral reach (x3), and views are scaled down because
// they run orders of magnitude above the other counters.
func Score(m feed.Metrics) float64 {
	score := float64(m.Upvotes) +
		float64(m.Likes) +
		2*float64(m.Comments) +
		2*float64(m.Replies) +
		float64(m.Views)/100 +
		3*float64(m.Shares) +
		3*float64(m.Retweets)

	if score < scoreFloor {
		return scoreFloor
	}
	return score
}
