package dedup

import (
	"math"
	"sort"

	"github.com/rootandstem/curriculum-cli/internal/config"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

// Combine fuses the three similarity signals into one combined score and
// assigns a match tier. An exact hash match forces tier exact with score
// 1.0 regardless of the sub-scores. Pure and deterministic: the same
// inputs always yield the same (score, tier).
func Combine(title, content, metadata float64, exactHash bool, cfg config.DetectionConfig) (float64, model.MatchTier) {
	if exactHash {
		return 1.0, model.TierExact
	}

	score := title*cfg.TitleWeight + content*cfg.ContentWeight + metadata*cfg.MetadataWeight
	score = math.Round(score*10000) / 10000 // 4 decimal places, reproducible across runs

	switch {
	case score >= 1.0:
		return 1.0, model.TierExact
	case score >= cfg.HighThreshold:
		return score, model.TierHigh
	case score >= cfg.MediumThreshold:
		return score, model.TierMedium
	default:
		return score, model.TierLow
	}
}

// SortRecords orders similarity records deterministically: combined
// score descending, then document title ascending, then document id
// ascending. Keeps top-N selection stable for tests when scores tie.
func SortRecords(records []model.SimilarityRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.DocumentTitle != b.DocumentTitle {
			return a.DocumentTitle < b.DocumentTitle
		}
		return a.DocumentID < b.DocumentID
	})
}
