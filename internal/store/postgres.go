package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/rootandstem/curriculum-cli/internal/db"
	"github.com/rootandstem/curriculum-cli/internal/embedding"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS corpus_documents (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	embedding    JSONB,
	metadata     JSONB,
	canonical_id TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_corpus_content_hash ON corpus_documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_corpus_canonical_id ON corpus_documents(canonical_id);

CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	embedding    JSONB,
	metadata     JSONB,
	submitter_id TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'submitted',
	reviewer_id  TEXT NOT NULL DEFAULT '',
	updates_id   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);

CREATE TABLE IF NOT EXISTS similarity_records (
	submission_id      TEXT NOT NULL,
	document_id        TEXT NOT NULL,
	document_title     TEXT NOT NULL DEFAULT '',
	title_similarity   DOUBLE PRECISION NOT NULL,
	content_similarity DOUBLE PRECISION NOT NULL,
	metadata_overlap   DOUBLE PRECISION NOT NULL,
	combined_score     DOUBLE PRECISION NOT NULL,
	tier               TEXT NOT NULL,
	details            JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (submission_id, document_id)
);

CREATE TABLE IF NOT EXISTS resolution_records (
	id           TEXT PRIMARY KEY,
	group_id     TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	retired_ids  JSONB NOT NULL,
	mode         TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	actor        TEXT NOT NULL,
	resolved_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS archived_documents (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	document     JSONB NOT NULL,
	canonical_id TEXT NOT NULL,
	reason       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_archived_canonical_id ON archived_documents(canonical_id);
CREATE INDEX IF NOT EXISTS idx_archived_archived_at ON archived_documents(archived_at);

CREATE TABLE IF NOT EXISTS group_dismissals (
	group_id     TEXT PRIMARY KEY,
	actor        TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	dismissed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const corpusColumns = `id, title, summary, content, content_hash, embedding, metadata, canonical_id, created_at, updated_at`

// UpsertCorpusDocuments bulk-loads corpus documents, replacing existing
// rows with the same id.
func (s *PostgresStore) UpsertCorpusDocuments(ctx context.Context, docs []model.CorpusDocument) (int64, error) {
	rows := make([][]any, 0, len(docs))
	now := time.Now().UTC()
	for i := range docs {
		doc := &docs[i]
		embJSON, metaJSON, err := marshalDocJSON(doc.Embedding, doc.Metadata)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal document %s", doc.ID)
		}
		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows = append(rows, []any{
			doc.ID, doc.Title, doc.Summary, doc.Content, doc.ContentHash,
			embJSON, metaJSON, doc.CanonicalID, createdAt, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "corpus_documents",
		Columns: []string{
			"id", "title", "summary", "content", "content_hash",
			"embedding", "metadata", "canonical_id", "created_at", "updated_at",
		},
		ConflictKeys: []string{"id"},
	}, rows)
}

// GetCorpusDocument fetches one live catalog entry by id.
func (s *PostgresStore) GetCorpusDocument(ctx context.Context, id string) (*model.CorpusDocument, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+corpusColumns+` FROM corpus_documents WHERE id = $1`, id)
	doc, err := scanCorpusDocument(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "corpus document %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get corpus document %s", id)
	}
	return doc, nil
}

// GetCorpusDocuments fetches multiple catalog entries by id. Missing ids
// are silently omitted.
func (s *PostgresStore) GetCorpusDocuments(ctx context.Context, ids []string) ([]model.CorpusDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+corpusColumns+` FROM corpus_documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get corpus documents")
	}
	defer rows.Close()
	return scanCorpusDocuments(rows)
}

// ListCorpusDocuments returns the full live catalog.
func (s *PostgresStore) ListCorpusDocuments(ctx context.Context) ([]model.CorpusDocument, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+corpusColumns+` FROM corpus_documents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corpus documents")
	}
	defer rows.Close()
	return scanCorpusDocuments(rows)
}

// FindByContentHash returns live documents with the given digest.
func (s *PostgresStore) FindByContentHash(ctx context.Context, digest string) ([]model.CorpusDocument, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+corpusColumns+` FROM corpus_documents WHERE content_hash = $1 ORDER BY id`, digest)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by content hash")
	}
	defer rows.Close()
	return scanCorpusDocuments(rows)
}

// ListEmbeddings returns (id, vector) pairs for every document that has
// an embedding. Documents without one are excluded, not zeroed.
func (s *PostgresStore) ListEmbeddings(ctx context.Context) ([]embedding.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, embedding FROM corpus_documents WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list embeddings")
	}
	defer rows.Close()

	var entries []embedding.Entry
	for rows.Next() {
		var id string
		var embJSON []byte
		if err := rows.Scan(&id, &embJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedding")
		}
		var vec []float32
		if err := json.Unmarshal(embJSON, &vec); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal embedding for %s", id)
		}
		entries = append(entries, embedding.Entry{DocumentID: id, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate embeddings")
	}
	return entries, nil
}

// CreateSubmission inserts a new submission in the submitted state.
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = model.SubmissionStatusSubmitted
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	embJSON, metaJSON, err := marshalDocJSON(sub.Embedding, sub.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal submission")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions
			(id, title, summary, content, content_hash, embedding, metadata, submitter_id, status, reviewer_id, updates_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sub.ID, sub.Title, sub.Summary, sub.Content, sub.ContentHash,
		embJSON, metaJSON, sub.SubmitterID, string(sub.Status), sub.ReviewerID, sub.UpdatesID,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: insert submission")
	}
	return nil
}

const submissionColumns = `id, title, summary, content, content_hash, embedding, metadata, submitter_id, status, reviewer_id, updates_id, created_at, updated_at`

// GetSubmission fetches one submission by id.
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "submission %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	return sub, nil
}

// ListSubmissions returns submissions matching the filter, newest first.
func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate submissions")
	}
	return subs, nil
}

// statusTransitions maps a target status to the states it may be
// entered from. Claiming in_review goes through ClaimReview instead.
var statusTransitions = map[model.SubmissionStatus]model.SubmissionStatus{
	model.SubmissionStatusApproved:      model.SubmissionStatusInReview,
	model.SubmissionStatusNeedsRevision: model.SubmissionStatusInReview,
	model.SubmissionStatusSubmitted:     model.SubmissionStatusNeedsRevision, // resubmission
}

// UpdateSubmissionStatus applies a lifecycle transition, enforcing the
// state machine at the database level.
func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error {
	from, ok := statusTransitions[status]
	if !ok {
		return eris.Wrapf(ErrInvalidTransition, "cannot set status %s directly", status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET status = $1, reviewer_id = '', updated_at = $2 WHERE id = $3 AND status = $4
	`, string(status), time.Now().UTC(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "postgres: update submission status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.explainTransitionFailure(ctx, id, from)
	}
	return nil
}

// ClaimReview atomically transitions a submission from submitted to
// in_review for one reviewer. A concurrent second claim fails with
// ErrAlreadyClaimed rather than silently overwriting.
func (s *PostgresStore) ClaimReview(ctx context.Context, id, reviewerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET status = $1, reviewer_id = $2, updated_at = $3 WHERE id = $4 AND status = $5
	`, string(model.SubmissionStatusInReview), reviewerID, time.Now().UTC(), id, string(model.SubmissionStatusSubmitted))
	if err != nil {
		return eris.Wrapf(err, "postgres: claim review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.explainTransitionFailure(ctx, id, model.SubmissionStatusSubmitted)
	}
	return nil
}

// ReleaseReview returns an in_review submission (held by reviewerID)
// to the submitted state.
func (s *PostgresStore) ReleaseReview(ctx context.Context, id, reviewerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET status = $1, reviewer_id = '', updated_at = $2 WHERE id = $3 AND status = $4 AND reviewer_id = $5
	`, string(model.SubmissionStatusSubmitted), time.Now().UTC(), id, string(model.SubmissionStatusInReview), reviewerID)
	if err != nil {
		return eris.Wrapf(err, "postgres: release review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.explainTransitionFailure(ctx, id, model.SubmissionStatusInReview)
	}
	return nil
}

// explainTransitionFailure distinguishes a missing submission from a
// state conflict after a zero-row conditional update.
func (s *PostgresStore) explainTransitionFailure(ctx context.Context, id string, wantFrom model.SubmissionStatus) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM submissions WHERE id = $1`, id).Scan(&status)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "submission %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: inspect submission %s", id)
	}
	if wantFrom == model.SubmissionStatusSubmitted && model.SubmissionStatus(status) == model.SubmissionStatusInReview {
		return eris.Wrapf(ErrAlreadyClaimed, "submission %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "submission %s is %s, expected %s", id, status, wantFrom)
}

// ReplaceSimilarityRecords atomically supersedes the evidence set for a
// submission with the latest detection run's records.
func (s *PostgresStore) ReplaceSimilarityRecords(ctx context.Context, submissionID string, records []model.SimilarityRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin evidence tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM similarity_records WHERE submission_id = $1`, submissionID); err != nil {
		return eris.Wrap(err, "postgres: delete prior evidence")
	}

	if len(records) > 0 {
		rows := make([][]any, 0, len(records))
		for _, r := range records {
			detailsJSON, err := json.Marshal(r.Details)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal details for %s", r.DocumentID)
			}
			rows = append(rows, []any{
				r.SubmissionID, r.DocumentID, r.DocumentTitle,
				r.TitleSimilarity, r.ContentSimilarity, r.MetadataOverlap,
				r.CombinedScore, string(r.Tier), detailsJSON, r.CreatedAt,
			})
		}
		if _, err := db.CopyFrom(ctx, tx, "similarity_records", []string{
			"submission_id", "document_id", "document_title",
			"title_similarity", "content_similarity", "metadata_overlap",
			"combined_score", "tier", "details", "created_at",
		}, rows); err != nil {
			return eris.Wrap(err, "postgres: copy evidence")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit evidence tx")
	}
	return nil
}

// ListSimilarityRecords returns the persisted evidence for a submission
// ordered by combined score descending with the deterministic tiebreak.
func (s *PostgresStore) ListSimilarityRecords(ctx context.Context, submissionID string) ([]model.SimilarityRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT submission_id, document_id, document_title, title_similarity, content_similarity,
		       metadata_overlap, combined_score, tier, details, created_at
		FROM similarity_records
		WHERE submission_id = $1
		ORDER BY combined_score DESC, document_title ASC, document_id ASC
	`, submissionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list similarity records")
	}
	defer rows.Close()

	var records []model.SimilarityRecord
	for rows.Next() {
		var r model.SimilarityRecord
		var tier string
		var detailsJSON []byte
		if err := rows.Scan(&r.SubmissionID, &r.DocumentID, &r.DocumentTitle,
			&r.TitleSimilarity, &r.ContentSimilarity, &r.MetadataOverlap,
			&r.CombinedScore, &tier, &detailsJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan similarity record")
		}
		r.Tier = model.MatchTier(tier)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &r.Details); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal details for %s", r.DocumentID)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate similarity records")
	}
	return records, nil
}

// ResolveGroup executes the archival transaction: snapshot each retired
// document, remove it from the live catalog, collapse canonical pointer
// chains one hop, and append exactly one resolution record. Any
// validation failure aborts the whole transaction.
func (s *PostgresStore) ResolveGroup(ctx context.Context, req model.ResolveRequest) (*model.ResolutionRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin resolution tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Lock and validate the canonical survivor.
	var canonicalPtr *string
	err = tx.QueryRow(ctx, `SELECT canonical_id FROM corpus_documents WHERE id = $1 FOR UPDATE`, req.CanonicalID).Scan(&canonicalPtr)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrCanonicalNotFound, "%s", req.CanonicalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock canonical %s", req.CanonicalID)
	}
	if canonicalPtr != nil {
		// Pointer chains stay single-hop: a superseded document cannot
		// become a canonical target.
		return nil, eris.Wrapf(ErrCanonicalNotFound, "%s is superseded by %s", req.CanonicalID, *canonicalPtr)
	}

	now := time.Now().UTC()

	if req.Mode == model.ResolutionKeepAll {
		// Keep-all leaves the catalog untouched; title rewrites are
		// deliberately ignored in this mode.
		if _, err := tx.Exec(ctx, `
			INSERT INTO group_dismissals (group_id, actor, notes, dismissed_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT (group_id) DO NOTHING
		`, req.GroupID, req.Actor, req.Notes, now); err != nil {
			return nil, eris.Wrap(err, "postgres: insert dismissal")
		}
	} else {
		if title, ok := req.TitleRewrites[req.CanonicalID]; ok {
			if _, err := tx.Exec(ctx, `UPDATE corpus_documents SET title = $1, updated_at = $2 WHERE id = $3`,
				title, now, req.CanonicalID); err != nil {
				return nil, eris.Wrap(err, "postgres: rewrite canonical title")
			}
		}

		for _, rid := range req.RetiredIDs {
			row := tx.QueryRow(ctx, `SELECT `+corpusColumns+` FROM corpus_documents WHERE id = $1 FOR UPDATE`, rid)
			doc, err := scanCorpusDocument(row)
			if eris.Is(err, pgx.ErrNoRows) {
				return nil, eris.Wrapf(ErrRetiredNotFound, "%s", rid)
			}
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: lock retired %s", rid)
			}

			snapshot, err := json.Marshal(doc)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: snapshot %s", rid)
			}
			reason := fmt.Sprintf("merged into %s during resolution of group %s", req.CanonicalID, req.GroupID)

			if _, err := tx.Exec(ctx, `
				INSERT INTO archived_documents (id, document_id, document, canonical_id, reason, actor, archived_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New().String(), rid, snapshot, req.CanonicalID, reason, req.Actor, now); err != nil {
				return nil, eris.Wrapf(err, "postgres: archive %s", rid)
			}

			if _, err := tx.Exec(ctx, `DELETE FROM corpus_documents WHERE id = $1`, rid); err != nil {
				return nil, eris.Wrapf(err, "postgres: remove %s from catalog", rid)
			}
		}

		// Single-hop collapse: live documents that pointed at a retired
		// document now point at the new canonical.
		if _, err := tx.Exec(ctx, `UPDATE corpus_documents SET canonical_id = $1, updated_at = $2 WHERE canonical_id = ANY($3)`,
			req.CanonicalID, now, req.RetiredIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: collapse canonical pointers")
		}
	}

	rec := &model.ResolutionRecord{
		ID:          uuid.New().String(),
		GroupID:     req.GroupID,
		CanonicalID: req.CanonicalID,
		RetiredIDs:  req.RetiredIDs,
		Mode:        req.Mode,
		Notes:       req.Notes,
		Actor:       req.Actor,
		ResolvedAt:  now,
	}
	retiredJSON, err := json.Marshal(rec.RetiredIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal retired ids")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO resolution_records (id, group_id, canonical_id, retired_ids, mode, notes, actor, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.GroupID, rec.CanonicalID, retiredJSON, string(rec.Mode), rec.Notes, rec.Actor, rec.ResolvedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: insert resolution record")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit resolution tx")
	}
	return rec, nil
}

// IsGroupDismissed reports whether an evidence group was resolved keep-all.
func (s *PostgresStore) IsGroupDismissed(ctx context.Context, groupID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM group_dismissals WHERE group_id = $1`, groupID).Scan(&one)
	if eris.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: check dismissal")
	}
	return true, nil
}

// ListResolutions returns resolution records, newest first.
func (s *PostgresStore) ListResolutions(ctx context.Context, limit int) ([]model.ResolutionRecord, error) {
	query := `SELECT id, group_id, canonical_id, retired_ids, mode, notes, actor, resolved_at FROM resolution_records ORDER BY resolved_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list resolutions")
	}
	defer rows.Close()

	var records []model.ResolutionRecord
	for rows.Next() {
		var r model.ResolutionRecord
		var mode string
		var retiredJSON []byte
		if err := rows.Scan(&r.ID, &r.GroupID, &r.CanonicalID, &retiredJSON, &mode, &r.Notes, &r.Actor, &r.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		r.Mode = model.ResolutionMode(mode)
		if len(retiredJSON) > 0 {
			if err := json.Unmarshal(retiredJSON, &r.RetiredIDs); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal retired ids for %s", r.ID)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate resolutions")
	}
	return records, nil
}

// ListArchivedByCanonical returns archived snapshots merged into the
// given canonical document.
func (s *PostgresStore) ListArchivedByCanonical(ctx context.Context, canonicalID string) ([]model.ArchivedDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document, canonical_id, reason, actor, archived_at
		FROM archived_documents WHERE canonical_id = $1 ORDER BY archived_at DESC
	`, canonicalID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list archived")
	}
	defer rows.Close()

	var docs []model.ArchivedDocument
	for rows.Next() {
		var a model.ArchivedDocument
		var docJSON []byte
		if err := rows.Scan(&docJSON, &a.CanonicalID, &a.Reason, &a.Actor, &a.ArchivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan archived")
		}
		if err := json.Unmarshal(docJSON, &a.Document); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal archived document")
		}
		docs = append(docs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate archived")
	}
	return docs, nil
}

// marshalDocJSON marshals the embedding and metadata columns, keeping
// NULLs for absent values so missing embeddings stay distinguishable.
func marshalDocJSON(vec []float32, meta model.Metadata) ([]byte, []byte, error) {
	var embJSON []byte
	if len(vec) > 0 {
		var err error
		embJSON, err = json.Marshal(vec)
		if err != nil {
			return nil, nil, err
		}
	}
	var metaJSON []byte
	if len(meta) > 0 {
		var err error
		metaJSON, err = json.Marshal(meta)
		if err != nil {
			return nil, nil, err
		}
	}
	return embJSON, metaJSON, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorpusDocument(row rowScanner) (*model.CorpusDocument, error) {
	var doc model.CorpusDocument
	var embJSON, metaJSON []byte
	err := row.Scan(&doc.ID, &doc.Title, &doc.Summary, &doc.Content, &doc.ContentHash,
		&embJSON, &metaJSON, &doc.CanonicalID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(embJSON) > 0 {
		if err := json.Unmarshal(embJSON, &doc.Embedding); err != nil {
			return nil, eris.Wrapf(err, "unmarshal embedding for %s", doc.ID)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &doc.Metadata); err != nil {
			return nil, eris.Wrapf(err, "unmarshal metadata for %s", doc.ID)
		}
	}
	return &doc, nil
}

func scanCorpusDocuments(rows pgx.Rows) ([]model.CorpusDocument, error) {
	var docs []model.CorpusDocument
	for rows.Next() {
		doc, err := scanCorpusDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan corpus document")
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate corpus documents")
	}
	return docs, nil
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var sub model.Submission
	var status string
	var embJSON, metaJSON []byte
	err := row.Scan(&sub.ID, &sub.Title, &sub.Summary, &sub.Content, &sub.ContentHash,
		&embJSON, &metaJSON, &sub.SubmitterID, &status, &sub.ReviewerID, &sub.UpdatesID,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = model.SubmissionStatus(status)
	if len(embJSON) > 0 {
		if err := json.Unmarshal(embJSON, &sub.Embedding); err != nil {
			return nil, eris.Wrapf(err, "unmarshal embedding for %s", sub.ID)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &sub.Metadata); err != nil {
			return nil, eris.Wrapf(err, "unmarshal metadata for %s", sub.ID)
		}
	}
	return &sub, nil
}
