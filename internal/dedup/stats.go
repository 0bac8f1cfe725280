package dedup

import (
	"sort"

	"github.com/rootandstem/curriculum-cli/internal/model"
)

// computeStats summarizes a score distribution to support threshold
// tuning without re-deriving from raw storage. Callers pass the full
// scored candidate set, not just the floor-filtered survivors.
func computeStats(records []model.SimilarityRecord) model.ScoreStats {
	if len(records) == 0 {
		return model.ScoreStats{}
	}

	scores := make([]float64, len(records))
	var sum float64
	for i, r := range records {
		scores[i] = r.CombinedScore
		sum += r.CombinedScore
	}
	sort.Float64s(scores)

	return model.ScoreStats{
		Min:    scores[0],
		Max:    scores[len(scores)-1],
		Mean:   sum / float64(len(scores)),
		Median: percentile(scores, 0.5),
		P90:    percentile(scores, 0.9),
	}
}

// percentile returns the p-th percentile of sorted scores using
// nearest-rank with linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// tierCounts tallies persisted records per match tier.
func tierCounts(records []model.SimilarityRecord) map[model.MatchTier]int {
	counts := make(map[model.MatchTier]int, 4)
	for _, r := range records {
		counts[r.Tier]++
	}
	return counts
}
