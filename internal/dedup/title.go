package dedup

import "github.com/rootandstem/curriculum-cli/internal/normalize"

// TitleSimilarity returns the token-set Jaccard similarity of two
// titles, multiplied by a length-ratio penalty over the distinct token
// counts so a short fragment of a much longer title does not score as a
// near-duplicate. Symmetric; empty-title pairs yield 0.
func TitleSimilarity(a, b string) float64 {
	aSet := normalize.TokenSet(a)
	bSet := normalize.TokenSet(b)
	if len(aSet) == 0 || len(bSet) == 0 {
		return 0
	}

	intersection := 0
	for t := range aSet {
		if bSet[t] {
			intersection++
		}
	}
	union := len(aSet) + len(bSet) - intersection
	jaccard := float64(intersection) / float64(union)

	shorter, longer := len(aSet), len(bSet)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	penalty := float64(shorter) / float64(longer)

	return jaccard * penalty
}
