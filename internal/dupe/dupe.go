// Package dupe ranks canonical entities by name similarity to a candidate
// key. The ranking is advisory: callers use it to inform accept/merge/reject
// decisions, it never blocks anything by itself.
package dupe

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/hpungsan/vouch/internal/candidate"
)

// Match pairs an entity with its similarity score against the probe key.
type Match struct {
	Entity candidate.CoreEntity `json:"entity"`
	Score  float64              `json:"score"`
}

// Ranker scores and orders near-duplicate matches.
type Ranker struct {
	// Threshold is the minimum score to report a match
	Threshold float64

	// MaxResults caps the returned list
	MaxResults int

	// ContainmentScore is the fixed score assigned when the similarity
	// metric scores a substring-containing pair below Threshold. It acts
	// as a floor so short keys embedded in longer canonical names still
	// surface for review.
	ContainmentScore float64
}

// DefaultRanker returns the reference ranking parameters.
func DefaultRanker() Ranker {
	return Ranker{
		Threshold:        0.3,
		MaxResults:       5,
		ContainmentScore: 0.55,
	}
}

// Similarity returns the Jaro-Winkler similarity of two normalized keys,
// in [0,1]. Jaro-Winkler favors shared prefixes, which suits entity names
// ("redis" vs "redis-cluster").
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

// score rates otherNorm against keyNorm, applying the containment floor.
// The second return is false when the pair is below threshold or identical
// (identical keys are exact matches, reported separately).
func (r Ranker) score(keyNorm, otherNorm string) (float64, bool) {
	if otherNorm == keyNorm {
		return 0, false
	}
	s := Similarity(keyNorm, otherNorm)
	if s < r.Threshold && contains(keyNorm, otherNorm) {
		s = r.ContainmentScore
	}
	if s < r.Threshold {
		return 0, false
	}
	return s, true
}

// Rank scores entities against keyNorm and returns matches at or above the
// threshold, ordered by descending score and capped at MaxResults.
// Identical keys are excluded: those are exact matches, reported separately.
func (r Ranker) Rank(keyNorm string, entities []candidate.CoreEntity) []Match {
	if keyNorm == "" {
		return nil
	}

	matches := make([]Match, 0, len(entities))
	for _, e := range entities {
		if score, ok := r.score(keyNorm, e.KeyNorm); ok {
			matches = append(matches, Match{Entity: e, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entity.KeyNorm < matches[j].Entity.KeyNorm
	})

	if r.MaxResults > 0 && len(matches) > r.MaxResults {
		matches = matches[:r.MaxResults]
	}
	return matches
}

// CandidateMatch pairs an in-flight candidate with its similarity score.
type CandidateMatch struct {
	Candidate candidate.Summary `json:"candidate"`
	Score     float64           `json:"score"`
}

// RankCandidates scores staged candidates against keyNorm the same way
// Rank scores canonical entities. Duplicates can exist before anything is
// promoted: two pending claims for near-identical keys should surface to
// the reviewer as a pair.
func (r Ranker) RankCandidates(keyNorm string, cands []*candidate.Candidate) []CandidateMatch {
	if keyNorm == "" {
		return nil
	}

	matches := make([]CandidateMatch, 0, len(cands))
	for _, c := range cands {
		if score, ok := r.score(keyNorm, c.KeyNorm); ok {
			matches = append(matches, CandidateMatch{Candidate: candidate.Summarize(c), Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Candidate.Key < matches[j].Candidate.Key
	})

	if r.MaxResults > 0 && len(matches) > r.MaxResults {
		matches = matches[:r.MaxResults]
	}
	return matches
}

// contains reports whether either key embeds the other. Keys shorter than
// three characters are ignored to avoid noise from single-letter overlap.
func contains(a, b string) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
