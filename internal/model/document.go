package model

import "time"

// SubmissionStatus represents the review lifecycle state of a submission.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted     SubmissionStatus = "submitted"
	SubmissionStatusInReview      SubmissionStatus = "in_review"
	SubmissionStatusApproved      SubmissionStatus = "approved"
	SubmissionStatusNeedsRevision SubmissionStatus = "needs_revision"
)

// MetadataField identifies one categorical metadata field on a lesson plan.
type MetadataField string

const (
	FieldGradeLevels      MetadataField = "grade_levels"
	FieldThemes           MetadataField = "themes"
	FieldActivityType     MetadataField = "activity_type"
	FieldCulturalHeritage MetadataField = "cultural_heritage"
	FieldSeason           MetadataField = "season"
	FieldMainIngredients  MetadataField = "main_ingredients"
	FieldCookingMethods   MetadataField = "cooking_methods"
)

// MetadataFields is the fixed, ordered list of categorical fields that
// participate in metadata overlap scoring.
var MetadataFields = []MetadataField{
	FieldGradeLevels,
	FieldThemes,
	FieldActivityType,
	FieldCulturalHeritage,
	FieldSeason,
	FieldMainIngredients,
	FieldCookingMethods,
}

// Metadata holds the categorical tag sets for a lesson plan.
type Metadata map[MetadataField][]string

// Get returns the tag set for a field, nil when absent.
func (m Metadata) Get(f MetadataField) []string {
	if m == nil {
		return nil
	}
	return m[f]
}

// CorpusDocument is a published, canonical catalog entry.
type CorpusDocument struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Content     string     `json:"content"`
	ContentHash string     `json:"content_hash"`
	Embedding   []float32  `json:"embedding,omitempty"`
	Metadata    Metadata   `json:"metadata,omitempty"`
	CanonicalID *string    `json:"canonical_id,omitempty"` // set only when superseded
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Submission is a pending lesson plan undergoing duplicate evaluation.
type Submission struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary,omitempty"`
	Content     string           `json:"content"`
	ContentHash string           `json:"content_hash,omitempty"`
	Embedding   []float32        `json:"embedding,omitempty"`
	Metadata    Metadata         `json:"metadata,omitempty"`
	SubmitterID string           `json:"submitter_id"`
	Status      SubmissionStatus `json:"status"`
	ReviewerID  string           `json:"reviewer_id,omitempty"`
	UpdatesID   *string          `json:"updates_id,omitempty"` // corpus doc this claims to update
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasEmbedding reports whether the submission carries a usable vector.
func (s *Submission) HasEmbedding() bool {
	return len(s.Embedding) > 0
}
