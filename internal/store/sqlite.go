package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rootandstem/curriculum-cli/internal/embedding"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

// SQLiteStore implements Store on an embedded database. Used for local
// development and single-operator installs where postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a sqlite database at path.
// Pass ":memory:" for an ephemeral database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS corpus_documents (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	embedding    TEXT,
	metadata     TEXT,
	canonical_id TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corpus_content_hash ON corpus_documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_corpus_canonical_id ON corpus_documents(canonical_id);

CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	embedding    TEXT,
	metadata     TEXT,
	submitter_id TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'submitted',
	reviewer_id  TEXT NOT NULL DEFAULT '',
	updates_id   TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);

CREATE TABLE IF NOT EXISTS similarity_records (
	submission_id      TEXT NOT NULL,
	document_id        TEXT NOT NULL,
	document_title     TEXT NOT NULL DEFAULT '',
	title_similarity   REAL NOT NULL,
	content_similarity REAL NOT NULL,
	metadata_overlap   REAL NOT NULL,
	combined_score     REAL NOT NULL,
	tier               TEXT NOT NULL,
	details            TEXT,
	created_at         TEXT NOT NULL,
	PRIMARY KEY (submission_id, document_id)
);

CREATE TABLE IF NOT EXISTS resolution_records (
	id           TEXT PRIMARY KEY,
	group_id     TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	retired_ids  TEXT NOT NULL,
	mode         TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	actor        TEXT NOT NULL,
	resolved_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS archived_documents (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	document     TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	reason       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	archived_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archived_canonical_id ON archived_documents(canonical_id);
CREATE INDEX IF NOT EXISTS idx_archived_archived_at ON archived_documents(archived_at);

CREATE TABLE IF NOT EXISTS group_dismissals (
	group_id     TEXT PRIMARY KEY,
	actor        TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	dismissed_at TEXT NOT NULL
);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func timeToDB(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timeFromDB(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// UpsertCorpusDocuments bulk-loads corpus documents inside one
// transaction, replacing existing rows with the same id.
func (s *SQLiteStore) UpsertCorpusDocuments(ctx context.Context, docs []model.CorpusDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corpus_documents (id, title, summary, content, content_hash, embedding, metadata, canonical_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, summary = excluded.summary, content = excluded.content,
			content_hash = excluded.content_hash, embedding = excluded.embedding,
			metadata = excluded.metadata, canonical_id = excluded.canonical_id,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for i := range docs {
		doc := &docs[i]
		embJSON, metaJSON, err := marshalDocJSON(doc.Embedding, doc.Metadata)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal document %s", doc.ID)
		}
		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.Title, doc.Summary, doc.Content, doc.ContentHash,
			nullableText(embJSON), nullableText(metaJSON), doc.CanonicalID,
			timeToDB(createdAt), timeToDB(now),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert document %s", doc.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert tx")
	}
	return n, nil
}

const sqliteCorpusColumns = `id, title, summary, content, content_hash, embedding, metadata, canonical_id, created_at, updated_at`

// GetCorpusDocument fetches one live catalog entry by id.
func (s *SQLiteStore) GetCorpusDocument(ctx context.Context, id string) (*model.CorpusDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCorpusColumns+` FROM corpus_documents WHERE id = ?`, id)
	doc, err := scanSQLiteCorpusDocument(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "corpus document %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get corpus document %s", id)
	}
	return doc, nil
}

// GetCorpusDocuments fetches multiple catalog entries by id. Missing ids
// are silently omitted.
func (s *SQLiteStore) GetCorpusDocuments(ctx context.Context, ids []string) ([]model.CorpusDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCorpusColumns+` FROM corpus_documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get corpus documents")
	}
	defer rows.Close()
	return scanSQLiteCorpusDocuments(rows)
}

// ListCorpusDocuments returns the full live catalog.
func (s *SQLiteStore) ListCorpusDocuments(ctx context.Context) ([]model.CorpusDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteCorpusColumns+` FROM corpus_documents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corpus documents")
	}
	defer rows.Close()
	return scanSQLiteCorpusDocuments(rows)
}

// FindByContentHash returns live documents with the given digest.
func (s *SQLiteStore) FindByContentHash(ctx context.Context, digest string) ([]model.CorpusDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCorpusColumns+` FROM corpus_documents WHERE content_hash = ? ORDER BY id`, digest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by content hash")
	}
	defer rows.Close()
	return scanSQLiteCorpusDocuments(rows)
}

// ListEmbeddings returns (id, vector) pairs for every document that has
// an embedding.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context) ([]embedding.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM corpus_documents WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list embeddings")
	}
	defer rows.Close()

	var entries []embedding.Entry
	for rows.Next() {
		var id, embJSON string
		if err := rows.Scan(&id, &embJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedding")
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal embedding for %s", id)
		}
		entries = append(entries, embedding.Entry{DocumentID: id, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate embeddings")
	}
	return entries, nil
}

// CreateSubmission inserts a new submission in the submitted state.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
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
		return eris.Wrap(err, "sqlite: marshal submission")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions
			(id, title, summary, content, content_hash, embedding, metadata, submitter_id, status, reviewer_id, updates_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.Title, sub.Summary, sub.Content, sub.ContentHash,
		nullableText(embJSON), nullableText(metaJSON), sub.SubmitterID, string(sub.Status),
		sub.ReviewerID, sub.UpdatesID, timeToDB(sub.CreatedAt), timeToDB(sub.UpdatedAt))
	if err != nil {
		return eris.Wrap(err, "sqlite: insert submission")
	}
	return nil
}

const sqliteSubmissionColumns = `id, title, summary, content, content_hash, embedding, metadata, submitter_id, status, reviewer_id, updates_id, created_at, updated_at`

// GetSubmission fetches one submission by id.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteSubmissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSQLiteSubmission(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "submission %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get submission %s", id)
	}
	return sub, nil
}

// ListSubmissions returns submissions matching the filter, newest first.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT ` + sqliteSubmissionColumns + ` FROM submissions`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSQLiteSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate submissions")
	}
	return subs, nil
}

// UpdateSubmissionStatus applies a lifecycle transition, enforcing the
// state machine at the database level.
func (s *SQLiteStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error {
	from, ok := statusTransitions[status]
	if !ok {
		return eris.Wrapf(ErrInvalidTransition, "cannot set status %s directly", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET status = ?, reviewer_id = '', updated_at = ? WHERE id = ? AND status = ?
	`, string(status), timeToDB(time.Now()), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "sqlite: update submission status %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.explainTransitionFailure(ctx, id, from)
	}
	return nil
}

// ClaimReview atomically transitions a submission from submitted to
// in_review for one reviewer.
func (s *SQLiteStore) ClaimReview(ctx context.Context, id, reviewerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET status = ?, reviewer_id = ?, updated_at = ? WHERE id = ? AND status = ?
	`, string(model.SubmissionStatusInReview), reviewerID, timeToDB(time.Now()),
		id, string(model.SubmissionStatusSubmitted))
	if err != nil {
		return eris.Wrapf(err, "sqlite: claim review %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.explainTransitionFailure(ctx, id, model.SubmissionStatusSubmitted)
	}
	return nil
}

// ReleaseReview returns an in_review submission held by reviewerID to
// the submitted state.
func (s *SQLiteStore) ReleaseReview(ctx context.Context, id, reviewerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET status = ?, reviewer_id = '', updated_at = ? WHERE id = ? AND status = ? AND reviewer_id = ?
	`, string(model.SubmissionStatusSubmitted), timeToDB(time.Now()),
		id, string(model.SubmissionStatusInReview), reviewerID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release review %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.explainTransitionFailure(ctx, id, model.SubmissionStatusInReview)
	}
	return nil
}

func (s *SQLiteStore) explainTransitionFailure(ctx context.Context, id string, wantFrom model.SubmissionStatus) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM submissions WHERE id = ?`, id).Scan(&status)
	if eris.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "submission %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: inspect submission %s", id)
	}
	if wantFrom == model.SubmissionStatusSubmitted && model.SubmissionStatus(status) == model.SubmissionStatusInReview {
		return eris.Wrapf(ErrAlreadyClaimed, "submission %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "submission %s is %s, expected %s", id, status, wantFrom)
}

// ReplaceSimilarityRecords atomically supersedes the evidence set for a
// submission with the latest detection run's records.
func (s *SQLiteStore) ReplaceSimilarityRecords(ctx context.Context, submissionID string, records []model.SimilarityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin evidence tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM similarity_records WHERE submission_id = ?`, submissionID); err != nil {
		return eris.Wrap(err, "sqlite: delete prior evidence")
	}

	for _, r := range records {
		detailsJSON, err := json.Marshal(r.Details)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal details for %s", r.DocumentID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO similarity_records
				(submission_id, document_id, document_title, title_similarity, content_similarity,
				 metadata_overlap, combined_score, tier, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.SubmissionID, r.DocumentID, r.DocumentTitle,
			r.TitleSimilarity, r.ContentSimilarity, r.MetadataOverlap,
			r.CombinedScore, string(r.Tier), string(detailsJSON), timeToDB(r.CreatedAt)); err != nil {
			return eris.Wrapf(err, "sqlite: insert evidence for %s", r.DocumentID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit evidence tx")
	}
	return nil
}

// ListSimilarityRecords returns the persisted evidence for a submission
// ordered by combined score descending with the deterministic tiebreak.
func (s *SQLiteStore) ListSimilarityRecords(ctx context.Context, submissionID string) ([]model.SimilarityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT submission_id, document_id, document_title, title_similarity, content_similarity,
		       metadata_overlap, combined_score, tier, details, created_at
		FROM similarity_records
		WHERE submission_id = ?
		ORDER BY combined_score DESC, document_title ASC, document_id ASC
	`, submissionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list similarity records")
	}
	defer rows.Close()

	var records []model.SimilarityRecord
	for rows.Next() {
		var r model.SimilarityRecord
		var tier, createdAt string
		var detailsJSON sql.NullString
		if err := rows.Scan(&r.SubmissionID, &r.DocumentID, &r.DocumentTitle,
			&r.TitleSimilarity, &r.ContentSimilarity, &r.MetadataOverlap,
			&r.CombinedScore, &tier, &detailsJSON, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan similarity record")
		}
		r.Tier = model.MatchTier(tier)
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &r.Details); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal details for %s", r.DocumentID)
			}
		}
		if r.CreatedAt, err = timeFromDB(createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse evidence timestamp")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate similarity records")
	}
	return records, nil
}

// ResolveGroup executes the archival transaction. Semantics mirror the
// postgres implementation: snapshot, retire, collapse pointers one hop,
// append one resolution record, all-or-nothing.
func (s *SQLiteStore) ResolveGroup(ctx context.Context, req model.ResolveRequest) (*model.ResolutionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin resolution tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var canonicalPtr sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT canonical_id FROM corpus_documents WHERE id = ?`, req.CanonicalID).Scan(&canonicalPtr)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrCanonicalNotFound, "%s", req.CanonicalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load canonical %s", req.CanonicalID)
	}
	if canonicalPtr.Valid && canonicalPtr.String != "" {
		return nil, eris.Wrapf(ErrCanonicalNotFound, "%s is superseded by %s", req.CanonicalID, canonicalPtr.String)
	}

	now := time.Now().UTC()

	if req.Mode == model.ResolutionKeepAll {
		// Keep-all leaves the catalog untouched; title rewrites are
		// deliberately ignored in this mode.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_dismissals (group_id, actor, notes, dismissed_at)
			VALUES (?, ?, ?, ?) ON CONFLICT (group_id) DO NOTHING
		`, req.GroupID, req.Actor, req.Notes, timeToDB(now)); err != nil {
			return nil, eris.Wrap(err, "sqlite: insert dismissal")
		}
	} else {
		if title, ok := req.TitleRewrites[req.CanonicalID]; ok {
			if _, err := tx.ExecContext(ctx, `UPDATE corpus_documents SET title = ?, updated_at = ? WHERE id = ?`,
				title, timeToDB(now), req.CanonicalID); err != nil {
				return nil, eris.Wrap(err, "sqlite: rewrite canonical title")
			}
		}

		for _, rid := range req.RetiredIDs {
			row := tx.QueryRowContext(ctx, `SELECT `+sqliteCorpusColumns+` FROM corpus_documents WHERE id = ?`, rid)
			doc, err := scanSQLiteCorpusDocument(row)
			if eris.Is(err, sql.ErrNoRows) {
				return nil, eris.Wrapf(ErrRetiredNotFound, "%s", rid)
			}
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: load retired %s", rid)
			}

			snapshot, err := json.Marshal(doc)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: snapshot %s", rid)
			}
			reason := fmt.Sprintf("merged into %s during resolution of group %s", req.CanonicalID, req.GroupID)

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO archived_documents (id, document_id, document, canonical_id, reason, actor, archived_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, uuid.New().String(), rid, string(snapshot), req.CanonicalID, reason, req.Actor, timeToDB(now)); err != nil {
				return nil, eris.Wrapf(err, "sqlite: archive %s", rid)
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM corpus_documents WHERE id = ?`, rid); err != nil {
				return nil, eris.Wrapf(err, "sqlite: remove %s from catalog", rid)
			}
		}

		if len(req.RetiredIDs) > 0 {
			placeholders := strings.Repeat("?,", len(req.RetiredIDs))
			placeholders = placeholders[:len(placeholders)-1]
			args := []any{req.CanonicalID, timeToDB(now)}
			for _, rid := range req.RetiredIDs {
				args = append(args, rid)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE corpus_documents SET canonical_id = ?, updated_at = ? WHERE canonical_id IN (`+placeholders+`)`,
				args...); err != nil {
				return nil, eris.Wrap(err, "sqlite: collapse canonical pointers")
			}
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
		return nil, eris.Wrap(err, "sqlite: marshal retired ids")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resolution_records (id, group_id, canonical_id, retired_ids, mode, notes, actor, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.GroupID, rec.CanonicalID, string(retiredJSON), string(rec.Mode), rec.Notes, rec.Actor, timeToDB(rec.ResolvedAt)); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert resolution record")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit resolution tx")
	}
	return rec, nil
}

// IsGroupDismissed reports whether an evidence group was resolved keep-all.
func (s *SQLiteStore) IsGroupDismissed(ctx context.Context, groupID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM group_dismissals WHERE group_id = ?`, groupID).Scan(&one)
	if eris.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check dismissal")
	}
	return true, nil
}

// ListResolutions returns resolution records, newest first.
func (s *SQLiteStore) ListResolutions(ctx context.Context, limit int) ([]model.ResolutionRecord, error) {
	query := `SELECT id, group_id, canonical_id, retired_ids, mode, notes, actor, resolved_at FROM resolution_records ORDER BY resolved_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolutions")
	}
	defer rows.Close()

	var records []model.ResolutionRecord
	for rows.Next() {
		var r model.ResolutionRecord
		var mode, retiredJSON, resolvedAt string
		if err := rows.Scan(&r.ID, &r.GroupID, &r.CanonicalID, &retiredJSON, &mode, &r.Notes, &r.Actor, &resolvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		r.Mode = model.ResolutionMode(mode)
		if retiredJSON != "" {
			if err := json.Unmarshal([]byte(retiredJSON), &r.RetiredIDs); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal retired ids for %s", r.ID)
			}
		}
		if r.ResolvedAt, err = timeFromDB(resolvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse resolution timestamp")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate resolutions")
	}
	return records, nil
}

// ListArchivedByCanonical returns archived snapshots merged into the
// given canonical document.
func (s *SQLiteStore) ListArchivedByCanonical(ctx context.Context, canonicalID string) ([]model.ArchivedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document, canonical_id, reason, actor, archived_at
		FROM archived_documents WHERE canonical_id = ? ORDER BY archived_at DESC
	`, canonicalID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list archived")
	}
	defer rows.Close()

	var docs []model.ArchivedDocument
	for rows.Next() {
		var a model.ArchivedDocument
		var docJSON, archivedAt string
		if err := rows.Scan(&docJSON, &a.CanonicalID, &a.Reason, &a.Actor, &archivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan archived")
		}
		if err := json.Unmarshal([]byte(docJSON), &a.Document); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal archived document")
		}
		if a.ArchivedAt, err = timeFromDB(archivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse archive timestamp")
		}
		docs = append(docs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate archived")
	}
	return docs, nil
}

// nullableText converts empty JSON payloads to NULL so absent
// embeddings and metadata stay distinguishable from empty ones.
func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func scanSQLiteCorpusDocument(row rowScanner) (*model.CorpusDocument, error) {
	var doc model.CorpusDocument
	var embJSON, metaJSON, canonicalID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&doc.ID, &doc.Title, &doc.Summary, &doc.Content, &doc.ContentHash,
		&embJSON, &metaJSON, &canonicalID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &doc.Embedding); err != nil {
			return nil, eris.Wrapf(err, "unmarshal embedding for %s", doc.ID)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
			return nil, eris.Wrapf(err, "unmarshal metadata for %s", doc.ID)
		}
	}
	if canonicalID.Valid && canonicalID.String != "" {
		doc.CanonicalID = &canonicalID.String
	}
	if doc.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return nil, eris.Wrapf(err, "parse created_at for %s", doc.ID)
	}
	if doc.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return nil, eris.Wrapf(err, "parse updated_at for %s", doc.ID)
	}
	return &doc, nil
}

func scanSQLiteCorpusDocuments(rows *sql.Rows) ([]model.CorpusDocument, error) {
	var docs []model.CorpusDocument
	for rows.Next() {
		doc, err := scanSQLiteCorpusDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan corpus document")
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate corpus documents")
	}
	return docs, nil
}

func scanSQLiteSubmission(row rowScanner) (*model.Submission, error) {
	var sub model.Submission
	var status string
	var embJSON, metaJSON, updatesID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&sub.ID, &sub.Title, &sub.Summary, &sub.Content, &sub.ContentHash,
		&embJSON, &metaJSON, &sub.SubmitterID, &status, &sub.ReviewerID, &updatesID,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = model.SubmissionStatus(status)
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &sub.Embedding); err != nil {
			return nil, eris.Wrapf(err, "unmarshal embedding for %s", sub.ID)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &sub.Metadata); err != nil {
			return nil, eris.Wrapf(err, "unmarshal metadata for %s", sub.ID)
		}
	}
	if updatesID.Valid && updatesID.String != "" {
		sub.UpdatesID = &updatesID.String
	}
	if sub.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return nil, eris.Wrapf(err, "parse created_at for %s", sub.ID)
	}
	if sub.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return nil, eris.Wrapf(err, "parse updated_at for %s", sub.ID)
	}
	return &sub, nil
}
