package dedup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootandstem/curriculum-cli/internal/embedding"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

// fakeCatalog is an in-memory Catalog for detector tests.
type fakeCatalog struct {
	docs       []model.CorpusDocument
	dismissed  map[string]bool
	persisted  map[string][]model.SimilarityRecord
	persistErr error
	lookupErr  error
}

func newFakeCatalog(docs ...model.CorpusDocument) *fakeCatalog {
	return &fakeCatalog{
		docs:      docs,
		dismissed: map[string]bool{},
		persisted: map[string][]model.SimilarityRecord{},
	}
}

func (f *fakeCatalog) FindByContentHash(_ context.Context, digest string) ([]model.CorpusDocument, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var out []model.CorpusDocument
	for _, d := range f.docs {
		if d.ContentHash == digest {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListEmbeddings(context.Context) ([]embedding.Entry, error) {
	var out []embedding.Entry
	for _, d := range f.docs {
		out = append(out, embedding.Entry{DocumentID: d.ID, Vector: d.Embedding})
	}
	return out, nil
}

func (f *fakeCatalog) ListCorpusDocuments(context.Context) ([]model.CorpusDocument, error) {
	return f.docs, nil
}

func (f *fakeCatalog) GetCorpusDocuments(_ context.Context, ids []string) ([]model.CorpusDocument, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.CorpusDocument
	for _, d := range f.docs {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCatalog) IsGroupDismissed(_ context.Context, groupID string) (bool, error) {
	return f.dismissed[groupID], nil
}

func (f *fakeCatalog) ReplaceSimilarityRecords(_ context.Context, submissionID string, records []model.SimilarityRecord) error {
	if f.persistErr != nil {
		return f.persistErr
	}
	f.persisted[submissionID] = records
	return nil
}

func corpusDoc(id, title, content string, vec []float32, meta model.Metadata) model.CorpusDocument {
	return model.CorpusDocument{
		ID:          id,
		Title:       title,
		Content:     content,
		ContentHash: ContentHash(title, "", content, meta),
		Embedding:   vec,
		Metadata:    meta,
	}
}

func TestDetectorExactContentMatch(t *testing.T) {
	content := "Knead the dough. Shape the crust. Top and bake."
	doc := corpusDoc("doc-1", "Pizza Day", content, []float32{1, 0, 0}, nil)
	catalog := newFakeCatalog(doc)
	det := NewDetector(catalog, defaultDetection())

	// Same content modulo case and whitespace.
	sub := &model.Submission{
		ID:        "sub-1",
		Title:     "Pizza Day Remix",
		Content:   "knead the DOUGH.  shape the crust. top and bake.",
		Embedding: []float32{1, 0, 0},
	}

	report, err := det.Run(context.Background(), sub)
	require.NoError(t, err)

	require.Equal(t, 1, report.Persisted)
	rec := report.Records[0]
	assert.Equal(t, "doc-1", rec.DocumentID)
	assert.Equal(t, model.TierExact, rec.Tier)
	assert.Equal(t, 1.0, rec.CombinedScore)
	assert.True(t, rec.Details.ExactHash)
	assert.Equal(t, 1, report.TierCounts[model.TierExact])
}

func TestDetectorNoEmbeddingDegradedRun(t *testing.T) {
	doc := corpusDoc("doc-1", "Winter Root Vegetables", "roast the parsnips", []float32{1, 0, 0}, nil)
	catalog := newFakeCatalog(doc)
	det := NewDetector(catalog, defaultDetection())

	// No embedding, zero token overlap with any corpus title or content.
	sub := &model.Submission{
		ID:      "sub-1",
		Title:   "Citrus Juicing Basics",
		Content: "squeeze fresh oranges",
	}

	report, err := det.Run(context.Background(), sub)
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 0, report.Persisted)
	assert.Empty(t, report.Records)
	// The run completed; the caller can distinguish this from a failure.
	assert.Equal(t, 1, report.TotalCandidates)
	// The empty evidence set was still persisted, superseding prior runs.
	persisted, ok := catalog.persisted["sub-1"]
	assert.True(t, ok)
	assert.Empty(t, persisted)
}

func TestDetectorDegradedRunScoresTitleAndMetadata(t *testing.T) {
	meta := model.Metadata{model.FieldGradeLevels: {"3", "4", "5"}}
	doc := corpusDoc("doc-1", "Pizza Workshop Basics", "different corpus content entirely", nil, meta)
	catalog := newFakeCatalog(doc)

	cfg := defaultDetection()
	cfg.CombinedFloor = 0.15 // low floor so the degraded signals alone clear it
	cfg.MediumThreshold = 0.70
	cfg.HighThreshold = 0.85
	det := NewDetector(catalog, cfg)

	sub := &model.Submission{
		ID:       "sub-1",
		Title:    "Pizza Making Workshop",
		Content:  "make some pizza with students",
		Metadata: meta,
	}

	report, err := det.Run(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, 1, report.Persisted)

	rec := report.Records[0]
	// title 0.5 (Jaccard 2/4), content 0 (no embedding), metadata 0.2.
	assert.InDelta(t, 0.5, rec.TitleSimilarity, 1e-9)
	assert.Equal(t, 0.0, rec.ContentSimilarity)
	assert.InDelta(t, 0.2, rec.MetadataOverlap, 1e-9)
	assert.InDelta(t, 0.19, rec.CombinedScore, 1e-9)
	assert.True(t, rec.Details.EmbeddingSkipped)
}

func TestDetectorFloorAndTopN(t *testing.T) {
	cfg := defaultDetection()
	cfg.MaxResults = 2
	cfg.SemanticLimit = 10
	cfg.SemanticThreshold = 0.0

	// Three near candidates and one far below the floor.
	docs := []model.CorpusDocument{
		corpusDoc("doc-a", "Bean Soup Basics", "simmer the beans slowly", []float32{1, 0, 0.1}, nil),
		corpusDoc("doc-b", "Bean Soup Lab", "simmer beans with herbs", []float32{1, 0, 0.2}, nil),
		corpusDoc("doc-c", "Bean Soup Workshop", "cook beans for soup", []float32{1, 0, 0.3}, nil),
		corpusDoc("doc-d", "Unrelated Knitting", "knit a scarf", []float32{0, 1, 0}, nil),
	}
	catalog := newFakeCatalog(docs...)
	det := NewDetector(catalog, cfg)

	sub := &model.Submission{
		ID:        "sub-1",
		Title:     "Bean Soup Basics",
		Content:   "a fresh take on bean soup",
		Embedding: []float32{1, 0, 0.1},
	}

	report, err := det.Run(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalCandidates)
	assert.LessOrEqual(t, report.Persisted, 2)
	for _, rec := range report.Records {
		assert.GreaterOrEqual(t, rec.CombinedScore, cfg.CombinedFloor)
	}
	// Stats cover all four scored candidates, including the one the
	// floor filtered out, so the floor itself can be retuned.
	assert.Less(t, report.Stats.Min, cfg.CombinedFloor)
	assert.GreaterOrEqual(t, report.Stats.Max, cfg.CombinedFloor)
	// Records are ordered by combined score descending.
	for i := 1; i < len(report.Records); i++ {
		assert.GreaterOrEqual(t, report.Records[i-1].CombinedScore, report.Records[i].CombinedScore)
	}
}

func TestDetectorDismissedGroupNotPersisted(t *testing.T) {
	content := "shared lesson content here"
	doc := corpusDoc("doc-1", "Shared Lesson", content, nil, nil)
	catalog := newFakeCatalog(doc)
	catalog.dismissed["sub-1"] = true
	// Evidence from a run before the dismissal is still on record.
	catalog.persisted["sub-1"] = []model.SimilarityRecord{{SubmissionID: "sub-1", DocumentID: "doc-1"}}
	det := NewDetector(catalog, defaultDetection())

	sub := &model.Submission{ID: "sub-1", Title: "Shared Lesson", Content: content}

	report, err := det.Run(context.Background(), sub)
	require.NoError(t, err)

	assert.True(t, report.Dismissed)
	assert.Empty(t, report.Records)
	// The stale evidence set is cleared, not left to be served.
	records, ok := catalog.persisted["sub-1"]
	assert.True(t, ok)
	assert.Empty(t, records)
}

func TestDetectorFailedRunPersistsNothing(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.lookupErr = eris.New("backend unavailable")
	det := NewDetector(catalog, defaultDetection())

	sub := &model.Submission{ID: "sub-1", Title: "Anything", Content: "anything"}

	_, err := det.Run(context.Background(), sub)
	require.Error(t, err)
	assert.Empty(t, catalog.persisted)
}

func TestDetectorPersistFailureSurfaces(t *testing.T) {
	doc := corpusDoc("doc-1", "Pizza", "pizza content", nil, nil)
	catalog := newFakeCatalog(doc)
	catalog.persistErr = eris.New("write failed")
	det := NewDetector(catalog, defaultDetection())

	sub := &model.Submission{ID: "sub-1", Title: "Pizza", Content: "pizza content"}

	_, err := det.Run(context.Background(), sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist evidence")
}
