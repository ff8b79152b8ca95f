package trend

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/elonfeng/trendpulse/pkg/feed"
)

// maxKeywords caps how many title tokens feed the similarity check.
const maxKeywords = 10

// similarityThreshold groups any two mentions whose keyword sets overlap
// strongly; sameTopicThreshold is the relaxed bar for mentions that already
// share a topic tag.
const (
	similarityThreshold = 0.3
	sameTopicThreshold  = 0.2
)

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "into": true, "over": true, "after": true, "about": true,
	"are": true, "was": true, "were": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "you": true, "she": true, "him": true, "her": true,
	"its": true, "our": true, "their": true, "they": true, "them": true,
	"your": true, "his": true,
}

// TopicGroup is one cluster of near-duplicate mentions. The seed is the
// highest-scoring member; all membership decisions were made against it.
// Groups are transient: recomputed on every query, never persisted.
type TopicGroup struct {
	Seed            feed.Mention
	Members         []feed.Mention
	CombinedScore   float64
	Sources         []feed.Source
	Keywords        []string
	TotalArticles   int
	LatestTimestamp time.Time
}

// ExtractKeywords tokenizes a title into at most maxKeywords significant
// words: lowercased, punctuation stripped, short tokens, stopwords and
// pure numbers dropped.
func ExtractKeywords(title string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, title)

	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 2 || stopwords[word] || isNumeric(word) {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// Jaccard returns the Jaccard index of two keyword sets, 0 if either is
// empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// shouldGroup decides whether a candidate joins the seed's group. Exact
// same-source same-title pairs never merge: those are ingestion-level
// duplicates, not corroborating coverage.
func shouldGroup(seed, candidate feed.Mention, seedKeywords, candidateKeywords []string) bool {
	if seed.Source == candidate.Source && seed.Title == candidate.Title {
		return false
	}

	similarity := Jaccard(seedKeywords, candidateKeywords)
	if similarity >= similarityThreshold {
		return true
	}
	return seed.Topic == candidate.Topic && similarity >= sameTopicThreshold
}

// Group partitions a snapshot of mentions into topic groups in a single
// seed-based pass. Mentions are visited in descending score order; each
// unassigned mention seeds a group and claims every later unassigned
// mention similar to it. Membership is decided against the seed only, so
// clustering is deliberately non-transitive.
//
// The pass is O(n^2) in keyword-set comparisons. Callers bound n by
// restricting the snapshot to a trailing window; that ceiling is a
// documented constraint, not an oversight.
func Group(mentions []feed.Mention) []TopicGroup {
	sorted := make([]feed.Mention, len(mentions))
	copy(sorted, mentions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PopularityScore > sorted[j].PopularityScore
	})

	keywords := make([][]string, len(sorted))
	for i := range sorted {
		keywords[i] = ExtractKeywords(sorted[i].Title)
	}

	assigned := make([]bool, len(sorted))
	var groups []TopicGroup

	for i := range sorted {
		if assigned[i] {
			continue
		}
		assigned[i] = true

		seed := sorted[i]
		group := TopicGroup{
			Seed:            seed,
			CombinedScore:   seed.PopularityScore,
			Keywords:        keywords[i],
			TotalArticles:   1,
			LatestTimestamp: mentionTime(seed),
		}
		sourceSet := map[feed.Source]bool{seed.Source: true}

		for j := i + 1; j < len(sorted); j++ {
			if assigned[j] {
				continue
			}
			if !shouldGroup(seed, sorted[j], keywords[i], keywords[j]) {
				continue
			}

			assigned[j] = true
			group.Members = append(group.Members, sorted[j])
			group.CombinedScore += sorted[j].PopularityScore
			group.TotalArticles++
			sourceSet[sorted[j].Source] = true

			if t := mentionTime(sorted[j]); t.After(group.LatestTimestamp) {
				group.LatestTimestamp = t
			}
		}

		// Multi-article groups earn a super-linear corroboration bonus.
		if group.TotalArticles > 1 {
			group.CombinedScore += math.Log(float64(group.TotalArticles)) * 10
		}

		for src := range sourceSet {
			group.Sources = append(group.Sources, src)
		}
		sort.Slice(group.Sources, func(a, b int) bool {
			return group.Sources[a] < group.Sources[b]
		})

		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CombinedScore > groups[j].CombinedScore
	})
	return groups
}

func mentionTime(m feed.Mention) time.Time {
	if !m.PublishedAt.IsZero() {
		return m.PublishedAt
	}
	return m.CreatedAt
}
