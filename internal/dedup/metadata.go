package dedup

import (
	"strings"

	"github.com/rootandstem/curriculum-cli/internal/model"
)

// FieldOverlap holds the per-field result of metadata scoring, kept for
// the match-details breakdown shown to reviewers.
type FieldOverlap struct {
	Score  float64
	Shared []string
}

// MetadataOverlap computes the weighted per-field Jaccard overlap of two
// metadata sets. Fields absent on both sides contribute 0 to the
// weighted sum rather than being excluded, which intentionally
// penalizes sparse metadata. Returns the combined value in [0,1] and
// the per-field breakdown.
func MetadataOverlap(a, b model.Metadata, weights map[string]float64) (float64, map[string]FieldOverlap) {
	var total float64
	breakdown := make(map[string]FieldOverlap, len(model.MetadataFields))

	for _, field := range model.MetadataFields {
		weight := weights[string(field)]
		if weight == 0 {
			continue
		}

		aSet := tagSet(a.Get(field))
		bSet := tagSet(b.Get(field))

		score, shared := jaccardTags(aSet, bSet)
		total += score * weight
		breakdown[string(field)] = FieldOverlap{Score: score, Shared: shared}
	}

	return total, breakdown
}

// tagSet lower-cases and trims tags into a set, dropping empties.
func tagSet(tags []string) map[string]bool {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// jaccardTags returns |a ∩ b| / |a ∪ b| and the sorted shared tags.
// Both-empty yields 0.
func jaccardTags(a, b map[string]bool) (float64, []string) {
	if len(a) == 0 && len(b) == 0 {
		return 0, nil
	}

	var shared []string
	for t := range a {
		if b[t] {
			shared = append(shared, t)
		}
	}
	union := len(a) + len(b) - len(shared)
	if union == 0 {
		return 0, nil
	}
	sortStrings(shared)
	return float64(len(shared)) / float64(union), shared
}

// sortStrings is a tiny insertion sort; shared-tag slices are short.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
