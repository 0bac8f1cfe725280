// Package store persists the lesson catalog, submissions, duplicate
// evidence, and the append-only resolution audit trail.
package store

import (
	"context"
	"errors"

	"github.com/rootandstem/curriculum-cli/internal/embedding"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

// Sentinel errors surfaced by store operations. Callers match with
// eris.Is / errors.Is and translate to structured codes at the edge.
var (
	ErrNotFound          = errors.New("store: not found")
	ErrAlreadyClaimed    = errors.New("store: submission already in review")
	ErrInvalidTransition = errors.New("store: invalid status transition")
	ErrCanonicalNotFound = errors.New("store: canonical document not found")
	ErrRetiredNotFound   = errors.New("store: retired document not found")
)

// SubmissionFilter specifies criteria for listing submissions.
type SubmissionFilter struct {
	Status model.SubmissionStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the duplicate detection
// and resolution engine.
type Store interface {
	// Corpus
	UpsertCorpusDocuments(ctx context.Context, docs []model.CorpusDocument) (int64, error)
	GetCorpusDocument(ctx context.Context, id string) (*model.CorpusDocument, error)
	GetCorpusDocuments(ctx context.Context, ids []string) ([]model.CorpusDocument, error)
	ListCorpusDocuments(ctx context.Context) ([]model.CorpusDocument, error)
	FindByContentHash(ctx context.Context, digest string) ([]model.CorpusDocument, error)
	ListEmbeddings(ctx context.Context) ([]embedding.Entry, error)

	// Submissions
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error
	ClaimReview(ctx context.Context, id, reviewerID string) error
	ReleaseReview(ctx context.Context, id, reviewerID string) error

	// Evidence: the latest detection run's set is authoritative.
	ReplaceSimilarityRecords(ctx context.Context, submissionID string, records []model.SimilarityRecord) error
	ListSimilarityRecords(ctx context.Context, submissionID string) ([]model.SimilarityRecord, error)

	// Resolution (the only catalog writers; all transactional).
	ResolveGroup(ctx context.Context, req model.ResolveRequest) (*model.ResolutionRecord, error)
	IsGroupDismissed(ctx context.Context, groupID string) (bool, error)
	ListResolutions(ctx context.Context, limit int) ([]model.ResolutionRecord, error)
	ListArchivedByCanonical(ctx context.Context, canonicalID string) ([]model.ArchivedDocument, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
