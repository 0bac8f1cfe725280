package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootandstem/curriculum-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedCorpus(t *testing.T, s *SQLiteStore, docs ...model.CorpusDocument) {
	t.Helper()
	n, err := s.UpsertCorpusDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Equal(t, int64(len(docs)), n)
}

func testDoc(id, title string) model.CorpusDocument {
	return model.CorpusDocument{
		ID:          id,
		Title:       title,
		Content:     "content of " + title,
		ContentHash: "hash-" + id,
		Embedding:   []float32{0.1, 0.2, 0.3},
		Metadata: model.Metadata{
			model.FieldThemes: {"plant life cycles"},
		},
	}
}

func TestUpsertAndGetCorpusDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCorpus(t, s, testDoc("doc-1", "Pizza Garden Planting"))

	doc, err := s.GetCorpusDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Pizza Garden Planting", doc.Title)
	assert.Equal(t, "hash-doc-1", doc.ContentHash)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, doc.Embedding)
	assert.Equal(t, []string{"plant life cycles"}, doc.Metadata.Get(model.FieldThemes))
	assert.Nil(t, doc.CanonicalID)

	// Upsert with the same id replaces fields.
	updated := testDoc("doc-1", "Pizza Garden Planting v2")
	seedCorpus(t, s, updated)
	doc, err = s.GetCorpusDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Pizza Garden Planting v2", doc.Title)

	_, err = s.GetCorpusDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testDoc("doc-a", "Salsa Lab")
	b := testDoc("doc-b", "Salsa Lab Copy")
	b.ContentHash = a.ContentHash
	seedCorpus(t, s, a, b, testDoc("doc-c", "Unrelated"))

	docs, err := s.FindByContentHash(ctx, a.ContentHash)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-a", docs[0].ID)
	assert.Equal(t, "doc-b", docs[1].ID)
}

func TestListEmbeddingsExcludesMissing(t *testing.T) {
	s := newTestStore(t)

	withVec := testDoc("doc-1", "Has Vector")
	noVec := testDoc("doc-2", "No Vector")
	noVec.Embedding = nil
	seedCorpus(t, s, withVec, noVec)

	entries, err := s.ListEmbeddings(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc-1", entries[0].DocumentID)
}

func TestSubmissionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &model.Submission{
		Title:       "Herb Spiral Build",
		Content:     "full lesson text",
		SubmitterID: "teacher-9",
	}
	require.NoError(t, s.CreateSubmission(ctx, sub))
	require.NotEmpty(t, sub.ID)
	assert.Equal(t, model.SubmissionStatusSubmitted, sub.Status)

	// First claim wins, second fails.
	require.NoError(t, s.ClaimReview(ctx, sub.ID, "reviewer-1"))
	err := s.ClaimReview(ctx, sub.ID, "reviewer-2")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusInReview, got.Status)
	assert.Equal(t, "reviewer-1", got.ReviewerID)

	// Only the holder can release.
	assert.Error(t, s.ReleaseReview(ctx, sub.ID, "reviewer-2"))
	require.NoError(t, s.ReleaseReview(ctx, sub.ID, "reviewer-1"))

	got, err = s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, got.Status)
	assert.Empty(t, got.ReviewerID)

	// Approve requires in_review.
	err = s.UpdateSubmissionStatus(ctx, sub.ID, model.SubmissionStatusApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.ClaimReview(ctx, sub.ID, "reviewer-1"))
	require.NoError(t, s.UpdateSubmissionStatus(ctx, sub.ID, model.SubmissionStatusNeedsRevision))

	// Resubmission after revision.
	require.NoError(t, s.UpdateSubmissionStatus(ctx, sub.ID, model.SubmissionStatusSubmitted))

	err = s.ClaimReview(ctx, "missing", "reviewer-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSubmissionsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		require.NoError(t, s.CreateSubmission(ctx, &model.Submission{Title: title, SubmitterID: "t-1"}))
	}
	subs, err := s.ListSubmissions(ctx, SubmissionFilter{Status: model.SubmissionStatusSubmitted})
	require.NoError(t, err)
	assert.Len(t, subs, 3)

	subs, err = s.ListSubmissions(ctx, SubmissionFilter{Status: model.SubmissionStatusApproved})
	require.NoError(t, err)
	assert.Empty(t, subs)

	subs, err = s.ListSubmissions(ctx, SubmissionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestReplaceSimilarityRecordsSupersedes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := func(docID string, score float64) model.SimilarityRecord {
		return model.SimilarityRecord{
			SubmissionID:  "sub-1",
			DocumentID:    docID,
			DocumentTitle: "Doc " + docID,
			CombinedScore: score,
			Tier:          model.TierLow,
			Details:       model.MatchDetails{FieldScores: map[string]float64{"themes": 0.5}},
			CreatedAt:     time.Now().UTC(),
		}
	}

	require.NoError(t, s.ReplaceSimilarityRecords(ctx, "sub-1", []model.SimilarityRecord{
		rec("doc-1", 0.50), rec("doc-2", 0.80),
	}))

	records, err := s.ListSimilarityRecords(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doc-2", records[0].DocumentID) // highest score first
	assert.Equal(t, 0.5, records[1].Details.FieldScores["themes"])

	// A later run replaces the whole set.
	require.NoError(t, s.ReplaceSimilarityRecords(ctx, "sub-1", []model.SimilarityRecord{rec("doc-3", 0.65)}))
	records, err = s.ListSimilarityRecords(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-3", records[0].DocumentID)

	// Empty run clears the evidence.
	require.NoError(t, s.ReplaceSimilarityRecords(ctx, "sub-1", nil))
	records, err = s.ListSimilarityRecords(ctx, "sub-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResolveGroupSingle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	canonicalOf := func(id string) *string { return &id }
	survivor := testDoc("doc-keep", "Three Sisters Planting")
	dupA := testDoc("doc-dup-a", "Three Sisters Planting (copy)")
	dupB := testDoc("doc-dup-b", "3 Sisters Garden")
	// doc-old already points at dupA; the resolve must re-point it.
	chained := testDoc("doc-old", "Old Three Sisters")
	chained.CanonicalID = canonicalOf("doc-dup-a")
	seedCorpus(t, s, survivor, dupA, dupB, chained)

	rec, err := s.ResolveGroup(ctx, model.ResolveRequest{
		GroupID:     "grp-1",
		CanonicalID: "doc-keep",
		RetiredIDs:  []string{"doc-dup-a", "doc-dup-b"},
		Mode:        model.ResolutionSingle,
		Actor:       "admin-1",
		Notes:       "same lesson",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-keep", rec.CanonicalID)
	assert.Equal(t, []string{"doc-dup-a", "doc-dup-b"}, rec.RetiredIDs)

	// Retired documents are gone from the live catalog.
	_, err = s.GetCorpusDocument(ctx, "doc-dup-a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetCorpusDocument(ctx, "doc-dup-b")
	assert.ErrorIs(t, err, ErrNotFound)

	// Snapshots preserve the full document.
	archived, err := s.ListArchivedByCanonical(ctx, "doc-keep")
	require.NoError(t, err)
	require.Len(t, archived, 2)
	titles := []string{archived[0].Document.Title, archived[1].Document.Title}
	assert.Contains(t, titles, "Three Sisters Planting (copy)")
	assert.Contains(t, titles, "3 Sisters Garden")
	assert.Equal(t, "admin-1", archived[0].Actor)
	assert.Contains(t, archived[0].Reason, "doc-keep")

	// Pointer chain collapsed one hop.
	old, err := s.GetCorpusDocument(ctx, "doc-old")
	require.NoError(t, err)
	require.NotNil(t, old.CanonicalID)
	assert.Equal(t, "doc-keep", *old.CanonicalID)

	// Audit trail has exactly one record.
	resolutions, err := s.ListResolutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, model.ResolutionSingle, resolutions[0].Mode)
	assert.Equal(t, "same lesson", resolutions[0].Notes)
}

func TestResolveGroupTitleRewrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCorpus(t, s, testDoc("doc-keep", "pizza garden"), testDoc("doc-dup", "Pizza Garden"))

	_, err := s.ResolveGroup(ctx, model.ResolveRequest{
		GroupID:       "grp-1",
		CanonicalID:   "doc-keep",
		RetiredIDs:    []string{"doc-dup"},
		Mode:          model.ResolutionSingle,
		Actor:         "admin-1",
		TitleRewrites: map[string]string{"doc-keep": "Pizza Garden Planting"},
	})
	require.NoError(t, err)

	doc, err := s.GetCorpusDocument(ctx, "doc-keep")
	require.NoError(t, err)
	assert.Equal(t, "Pizza Garden Planting", doc.Title)
}

func TestResolveGroupAtomicRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCorpus(t, s, testDoc("doc-keep", "Survivor"), testDoc("doc-dup", "Duplicate"))

	// Second retired id is missing: the whole transaction must roll
	// back, leaving doc-dup live and no archive or audit rows.
	_, err := s.ResolveGroup(ctx, model.ResolveRequest{
		GroupID:     "grp-1",
		CanonicalID: "doc-keep",
		RetiredIDs:  []string{"doc-dup", "doc-ghost"},
		Mode:        model.ResolutionSingle,
		Actor:       "admin-1",
	})
	require.ErrorIs(t, err, ErrRetiredNotFound)

	_, err = s.GetCorpusDocument(ctx, "doc-dup")
	assert.NoError(t, err)

	archived, err := s.ListArchivedByCanonical(ctx, "doc-keep")
	require.NoError(t, err)
	assert.Empty(t, archived)

	resolutions, err := s.ListResolutions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, resolutions)
}

func TestResolveGroupCanonicalValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	canonical := "doc-keep"
	superseded := testDoc("doc-super", "Already Merged")
	superseded.CanonicalID = &canonical
	seedCorpus(t, s, testDoc("doc-keep", "Survivor"), superseded)

	_, err := s.ResolveGroup(ctx, model.ResolveRequest{
		GroupID:     "grp-1",
		CanonicalID: "doc-ghost",
		RetiredIDs:  []string{"doc-keep"},
		Mode:        model.ResolutionSingle,
		Actor:       "admin-1",
	})
	assert.ErrorIs(t, err, ErrCanonicalNotFound)

	// A superseded document cannot be the survivor.
	_, err = s.ResolveGroup(ctx, model.ResolveRequest{
		GroupID:     "grp-2",
		CanonicalID: "doc-super",
		RetiredIDs:  []string{"doc-keep"},
		Mode:        model.ResolutionSingle,
		Actor:       "admin-1",
	})
	assert.ErrorIs(t, err, ErrCanonicalNotFound)
}

func TestResolveGroupKeepAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCorpus(t, s, testDoc("doc-a", "Lesson A"), testDoc("doc-b", "Lesson B"))

	rec, err := s.ResolveGroup(ctx, model.ResolveRequest{
		GroupID:       "grp-1",
		CanonicalID:   "doc-a",
		Mode:          model.ResolutionKeepAll,
		Actor:         "admin-1",
		Notes:         "distinct lessons, similar titles",
		TitleRewrites: map[string]string{"doc-a": "Should Not Apply"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionKeepAll, rec.Mode)

	// Nothing archived, both documents still live, and the catalog is
	// untouched: the requested title rewrite is ignored in keep-all.
	docA, err := s.GetCorpusDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, "Lesson A", docA.Title)
	_, err = s.GetCorpusDocument(ctx, "doc-b")
	assert.NoError(t, err)

	dismissed, err := s.IsGroupDismissed(ctx, "grp-1")
	require.NoError(t, err)
	assert.True(t, dismissed)

	dismissed, err = s.IsGroupDismissed(ctx, "grp-other")
	require.NoError(t, err)
	assert.False(t, dismissed)
}

func TestDoubleResolveConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCorpus(t, s, testDoc("doc-keep", "Survivor"), testDoc("doc-dup", "Duplicate"))

	req := model.ResolveRequest{
		GroupID:     "grp-1",
		CanonicalID: "doc-keep",
		RetiredIDs:  []string{"doc-dup"},
		Mode:        model.ResolutionSingle,
		Actor:       "admin-1",
	}
	_, err := s.ResolveGroup(ctx, req)
	require.NoError(t, err)

	// Replaying the same resolution fails: the retired doc is gone.
	_, err = s.ResolveGroup(ctx, req)
	assert.ErrorIs(t, err, ErrRetiredNotFound)
}
