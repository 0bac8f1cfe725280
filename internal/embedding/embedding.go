// Package embedding provides cosine similarity and a small in-memory
// nearest-neighbor index over stored lesson embeddings.
package embedding

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths or zero-magnitude vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Entry is one indexed document vector.
type Entry struct {
	DocumentID string
	Vector     []float32
}

// Match is one similarity search hit.
type Match struct {
	DocumentID string
	Similarity float64
}

// Index is an exact-scan similarity index. The corpus is hundreds of
// documents, so a linear scan per query is well within the latency
// target; swap the internals for an ANN structure when it is not.
type Index struct {
	entries []Entry
}

// NewIndex builds an index from document vectors. Entries with no
// vector are excluded from consideration, not treated as similarity 0.
func NewIndex(entries []Entry) *Index {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) > 0 {
			kept = append(kept, e)
		}
	}
	return &Index{entries: kept}
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return len(ix.entries) }

// FindSimilar returns up to limit documents with cosine similarity at or
// above threshold, ordered by similarity descending with document id as
// a deterministic tiebreak.
func (ix *Index) FindSimilar(vec []float32, threshold float64, limit int) []Match {
	if len(vec) == 0 || limit <= 0 {
		return nil
	}

	var matches []Match
	for _, e := range ix.entries {
		sim := Cosine(vec, e.Vector)
		if sim >= threshold {
			matches = append(matches, Match{DocumentID: e.DocumentID, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
