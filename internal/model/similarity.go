package model

import "time"

// MatchTier is the ordinal classification of a scored pair.
type MatchTier string

const (
	TierExact  MatchTier = "exact"
	TierHigh   MatchTier = "high"
	TierMedium MatchTier = "medium"
	TierLow    MatchTier = "low"
)

// MatchDetails carries the human-readable breakdown for one scored pair.
type MatchDetails struct {
	ExactHash         bool                `json:"exact_hash"`
	MetadataDigest    bool                `json:"metadata_digest,omitempty"` // hash derived from metadata, not full text
	EmbeddingSkipped  bool                `json:"embedding_skipped,omitempty"`
	OverlappingFields map[string][]string `json:"overlapping_fields,omitempty"`
	FieldScores       map[string]float64  `json:"field_scores,omitempty"`
}

// SimilarityRecord is one persisted scored relationship between a
// submission and a corpus document. Immutable once written; a fresh
// detection run supersedes the whole evidence set for the submission.
// The evidence group is keyed by submission id: keep-all dismissals are
// recorded and looked up under that id.
type SimilarityRecord struct {
	SubmissionID      string       `json:"submission_id"`
	DocumentID        string       `json:"document_id"`
	DocumentTitle     string       `json:"document_title"`
	TitleSimilarity   float64      `json:"title_similarity"`
	ContentSimilarity float64      `json:"content_similarity"`
	MetadataOverlap   float64      `json:"metadata_overlap"`
	CombinedScore     float64      `json:"combined_score"`
	Tier              MatchTier    `json:"tier"`
	Details           MatchDetails `json:"details"`
	CreatedAt         time.Time    `json:"created_at"`
}

// ScoreStats summarizes the score distribution over every scored
// candidate of one detection run, before floor filtering, so thresholds
// can be retuned from the report.
type ScoreStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

// DetectionReport is the observable outcome of one detection run.
type DetectionReport struct {
	SubmissionID    string            `json:"submission_id"`
	Degraded        bool              `json:"degraded"`  // embedding signal unavailable
	Dismissed       bool              `json:"dismissed"` // group resolved keep-all; evidence not persisted
	TotalCandidates int               `json:"total_candidates"`
	Persisted       int               `json:"persisted"`
	TierCounts      map[MatchTier]int `json:"tier_counts"`
	Stats           ScoreStats        `json:"stats"`
	Records         []SimilarityRecord `json:"records"`
	Duration        time.Duration     `json:"duration"`
}
