package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootandstem/curriculum-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresGetCorpusDocumentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM corpus_documents WHERE id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCorpusDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetCorpusDocument(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM corpus_documents WHERE id`).
		WithArgs("doc-1").
		WillReturnRows(mock.NewRows([]string{
			"id", "title", "summary", "content", "content_hash",
			"embedding", "metadata", "canonical_id", "created_at", "updated_at",
		}).AddRow(
			"doc-1", "Pizza Garden", "", "body", "hash-1",
			[]byte(`[0.5,0.25]`), []byte(`{"themes":["plant life cycles"]}`), nil, now, now,
		))

	doc, err := s.GetCorpusDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Pizza Garden", doc.Title)
	assert.Equal(t, []float32{0.5, 0.25}, doc.Embedding)
	assert.Equal(t, []string{"plant life cycles"}, doc.Metadata.Get(model.FieldThemes))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimReviewConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE submissions SET status`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM submissions`).
		WithArgs("sub-1").
		WillReturnRows(mock.NewRows([]string{"status"}).AddRow("in_review"))

	err := s.ClaimReview(context.Background(), "sub-1", "reviewer-2")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimReviewNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE submissions SET status`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM submissions`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	err := s.ClaimReview(context.Background(), "missing", "reviewer-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceSimilarityRecords(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM similarity_records`).
		WithArgs("sub-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"similarity_records"}, []string{
		"submission_id", "document_id", "document_title",
		"title_similarity", "content_similarity", "metadata_overlap",
		"combined_score", "tier", "details", "created_at",
	}).WillReturnResult(1)
	mock.ExpectCommit()

	err := s.ReplaceSimilarityRecords(context.Background(), "sub-1", []model.SimilarityRecord{{
		SubmissionID:  "sub-1",
		DocumentID:    "doc-1",
		CombinedScore: 0.72,
		Tier:          model.TierMedium,
		CreatedAt:     time.Now().UTC(),
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceSimilarityRecordsEmptySkipsCopy(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM similarity_records`).
		WithArgs("sub-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.ReplaceSimilarityRecords(context.Background(), "sub-1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveGroupKeepAll(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT canonical_id FROM corpus_documents`).
		WithArgs("doc-keep").
		WillReturnRows(mock.NewRows([]string{"canonical_id"}).AddRow(nil))
	mock.ExpectExec(`INSERT INTO group_dismissals`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO resolution_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec, err := s.ResolveGroup(context.Background(), model.ResolveRequest{
		GroupID:     "grp-1",
		CanonicalID: "doc-keep",
		Mode:        model.ResolutionKeepAll,
		Actor:       "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionKeepAll, rec.Mode)
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveGroupCanonicalMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT canonical_id FROM corpus_documents`).
		WithArgs("doc-ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.ResolveGroup(context.Background(), model.ResolveRequest{
		GroupID:     "grp-1",
		CanonicalID: "doc-ghost",
		RetiredIDs:  []string{"doc-a"},
		Mode:        model.ResolutionSingle,
		Actor:       "admin-1",
	})
	assert.ErrorIs(t, err, ErrCanonicalNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIsGroupDismissed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT 1 FROM group_dismissals`).
		WithArgs("grp-1").
		WillReturnRows(mock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM group_dismissals`).
		WithArgs("grp-2").
		WillReturnError(pgx.ErrNoRows)

	dismissed, err := s.IsGroupDismissed(context.Background(), "grp-1")
	require.NoError(t, err)
	assert.True(t, dismissed)

	dismissed, err = s.IsGroupDismissed(context.Background(), "grp-2")
	require.NoError(t, err)
	assert.False(t, dismissed)

	assert.NoError(t, mock.ExpectationsWereMet())
}
