package dedup

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rootandstem/curriculum-cli/internal/config"
	"github.com/rootandstem/curriculum-cli/internal/embedding"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

// Catalog is the read/persist surface the detector needs from the store.
type Catalog interface {
	FindByContentHash(ctx context.Context, digest string) ([]model.CorpusDocument, error)
	ListEmbeddings(ctx context.Context) ([]embedding.Entry, error)
	ListCorpusDocuments(ctx context.Context) ([]model.CorpusDocument, error)
	GetCorpusDocuments(ctx context.Context, ids []string) ([]model.CorpusDocument, error)
	IsGroupDismissed(ctx context.Context, groupID string) (bool, error)
	ReplaceSimilarityRecords(ctx context.Context, submissionID string, records []model.SimilarityRecord) error
}

// Detector runs duplicate detection for submissions against the corpus.
// Stateless with respect to the catalog; safe to run in parallel across
// submissions.
type Detector struct {
	catalog Catalog
	cfg     config.DetectionConfig
}

// NewDetector creates a Detector with the given catalog and config.
func NewDetector(catalog Catalog, cfg config.DetectionConfig) *Detector {
	return &Detector{catalog: catalog, cfg: cfg}
}

// candidate pairs a corpus document with its embedding similarity and
// whether the pair already matched by content hash.
type candidate struct {
	doc        model.CorpusDocument
	contentSim float64
	exactHash  bool
}

// Run executes one detection run for a submission. Either the run
// completes and the full evidence set is persisted, or it fails and
// nothing is written; there are no partial evidence sets.
func (d *Detector) Run(ctx context.Context, sub *model.Submission) (*model.DetectionReport, error) {
	start := time.Now()
	log := zap.L().With(zap.String("submission_id", sub.ID))

	digest := sub.ContentHash
	if digest == "" {
		digest = ContentHash(sub.Title, sub.Summary, sub.Content, sub.Metadata)
	}

	candidates, degraded, err := d.gatherCandidates(ctx, sub, digest)
	if err != nil {
		return nil, err
	}

	records, err := d.scoreCandidates(ctx, sub, candidates, degraded)
	if err != nil {
		return nil, err
	}

	total := len(records)
	// Distribution over every scored candidate, pre-floor, so the floor
	// itself can be retuned from the report.
	stats := computeStats(records)

	// Floor filter, deterministic order, top-N.
	kept := records[:0]
	for _, r := range records {
		if r.CombinedScore >= d.cfg.CombinedFloor {
			kept = append(kept, r)
		}
	}
	SortRecords(kept)
	if len(kept) > d.cfg.MaxResults {
		kept = kept[:d.cfg.MaxResults]
	}

	report := &model.DetectionReport{
		SubmissionID:    sub.ID,
		Degraded:        degraded,
		TotalCandidates: total,
		TierCounts:      tierCounts(kept),
		Stats:           stats,
		Records:         kept,
		Duration:        time.Since(start),
	}

	dismissed, err := d.catalog.IsGroupDismissed(ctx, sub.ID)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: check dismissal")
	}
	if dismissed {
		// The group was resolved keep-all; do not resurface it, and
		// clear any evidence persisted by earlier runs so the review
		// surface stops serving it.
		report.Dismissed = true
		report.Records = nil
		report.TierCounts = map[model.MatchTier]int{}
		report.Stats = model.ScoreStats{}
		if err := d.catalog.ReplaceSimilarityRecords(ctx, sub.ID, nil); err != nil {
			return nil, eris.Wrap(err, "dedup: clear dismissed evidence")
		}
		log.Info("dedup: group dismissed, evidence cleared",
			zap.Int("candidates", total))
		return report, nil
	}

	if err := d.catalog.ReplaceSimilarityRecords(ctx, sub.ID, kept); err != nil {
		return nil, eris.Wrap(err, "dedup: persist evidence")
	}
	report.Persisted = len(kept)

	log.Info("dedup: detection run complete",
		zap.Bool("degraded", degraded),
		zap.Int("candidates", total),
		zap.Int("persisted", len(kept)),
		zap.Int("exact", report.TierCounts[model.TierExact]),
		zap.Int("high", report.TierCounts[model.TierHigh]),
		zap.Int("medium", report.TierCounts[model.TierMedium]),
		zap.Int("low", report.TierCounts[model.TierLow]),
		zap.Float64("score_max", report.Stats.Max),
		zap.Float64("score_median", report.Stats.Median),
		zap.Float64("score_p90", report.Stats.P90),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// gatherCandidates assembles the candidate set: exact hash matches are
// authoritative and cheap, then embedding search widens the net. When
// the submission has no embedding the search stage is skipped entirely
// and every corpus document is considered on title + metadata signals,
// reported as a degraded run rather than a confirmed non-duplicate.
func (d *Detector) gatherCandidates(ctx context.Context, sub *model.Submission, digest string) (map[string]*candidate, bool, error) {
	candidates := make(map[string]*candidate)

	exact, err := d.catalog.FindByContentHash(ctx, digest)
	if err != nil {
		return nil, false, eris.Wrap(err, "dedup: exact match lookup")
	}
	for _, doc := range exact {
		candidates[doc.ID] = &candidate{doc: doc, contentSim: 1.0, exactHash: true}
	}

	if !sub.HasEmbedding() {
		docs, err := d.catalog.ListCorpusDocuments(ctx)
		if err != nil {
			return nil, false, eris.Wrap(err, "dedup: list corpus")
		}
		for _, doc := range docs {
			if doc.ID == sub.ID {
				continue
			}
			if _, ok := candidates[doc.ID]; !ok {
				candidates[doc.ID] = &candidate{doc: doc}
			}
		}
		return candidates, true, nil
	}

	entries, err := d.catalog.ListEmbeddings(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "dedup: list embeddings")
	}
	index := embedding.NewIndex(entries)
	matches := index.FindSimilar(sub.Embedding, d.cfg.SemanticThreshold, d.cfg.SemanticLimit)

	var missing []string
	sims := make(map[string]float64, len(matches))
	for _, m := range matches {
		sims[m.DocumentID] = m.Similarity
		if _, ok := candidates[m.DocumentID]; ok {
			// Exact hash already short-circuits this pair.
			continue
		}
		missing = append(missing, m.DocumentID)
	}

	if len(missing) > 0 {
		docs, err := d.catalog.GetCorpusDocuments(ctx, missing)
		if err != nil {
			return nil, false, eris.Wrap(err, "dedup: fetch candidates")
		}
		for _, doc := range docs {
			candidates[doc.ID] = &candidate{doc: doc, contentSim: sims[doc.ID]}
		}
	}

	return candidates, false, nil
}

// scoreCandidates computes the per-candidate sub-scores in parallel and
// fuses them into similarity records.
func (d *Detector) scoreCandidates(ctx context.Context, sub *model.Submission, candidates map[string]*candidate, degraded bool) ([]model.SimilarityRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	list := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, c)
	}

	records := make([]model.SimilarityRecord, len(list))
	now := time.Now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.FanOut)
	for i, c := range list {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = d.scoreOne(sub, c, degraded, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "dedup: score candidates")
	}

	return records, nil
}

// scoreOne fuses the three signals for a single submission/document pair.
func (d *Detector) scoreOne(sub *model.Submission, c *candidate, degraded bool, now time.Time) model.SimilarityRecord {
	titleSim := TitleSimilarity(sub.Title, c.doc.Title)
	metaSim, breakdown := MetadataOverlap(sub.Metadata, c.doc.Metadata, d.cfg.MetadataWeights)
	combined, tier := Combine(titleSim, c.contentSim, metaSim, c.exactHash, d.cfg)

	details := model.MatchDetails{
		ExactHash:        c.exactHash,
		MetadataDigest:   IsMetadataDigest(c.doc.ContentHash),
		EmbeddingSkipped: degraded && !c.exactHash,
		FieldScores:      make(map[string]float64, len(breakdown)),
	}
	for field, fo := range breakdown {
		details.FieldScores[field] = fo.Score
		if len(fo.Shared) > 0 {
			if details.OverlappingFields == nil {
				details.OverlappingFields = make(map[string][]string)
			}
			details.OverlappingFields[field] = fo.Shared
		}
	}

	return model.SimilarityRecord{
		SubmissionID:      sub.ID,
		DocumentID:        c.doc.ID,
		DocumentTitle:     c.doc.Title,
		TitleSimilarity:   titleSim,
		ContentSimilarity: c.contentSim,
		MetadataOverlap:   metaSim,
		CombinedScore:     combined,
		Tier:              tier,
		Details:           details,
		CreatedAt:         now,
	}
}
