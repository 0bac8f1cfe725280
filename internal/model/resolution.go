package model

import "time"

// ResolutionMode describes how a duplicate group was resolved.
type ResolutionMode string

const (
	ResolutionSingle  ResolutionMode = "single"   // one canonical survivor, rest archived
	ResolutionSplit   ResolutionMode = "split"    // group split into subgroups
	ResolutionKeepAll ResolutionMode = "keep_all" // all documents kept, group dismissed
)

// ResolutionRecord is an append-only audit entry for one resolution action.
type ResolutionRecord struct {
	ID          string         `json:"id"`
	GroupID     string         `json:"group_id"`
	CanonicalID string         `json:"canonical_id"`
	RetiredIDs  []string       `json:"retired_ids"`
	Mode        ResolutionMode `json:"mode"`
	Notes       string         `json:"notes,omitempty"`
	Actor       string         `json:"actor"`
	ResolvedAt  time.Time      `json:"resolved_at"`
}

// ArchivedDocument is a full snapshot of a corpus document taken at the
// moment it was retired from the live catalog. Append-only.
type ArchivedDocument struct {
	Document    CorpusDocument `json:"document"`
	CanonicalID string         `json:"canonical_id"`
	Reason      string         `json:"reason"`
	Actor       string         `json:"actor"`
	ArchivedAt  time.Time      `json:"archived_at"`
}

// ResolveRequest is the resolution entry point's input contract.
type ResolveRequest struct {
	GroupID       string            `json:"group_id"`
	CanonicalID   string            `json:"canonical_id"`
	RetiredIDs    []string          `json:"retired_ids"`
	Mode          ResolutionMode    `json:"mode"`
	Notes         string            `json:"notes,omitempty"`
	Actor         string            `json:"actor"`
	TitleRewrites map[string]string `json:"title_rewrites,omitempty"` // canonical-survivor title fixes
}

// ResolveErrorCode names the structured failure classes of resolveGroup.
type ResolveErrorCode string

const (
	ResolveErrNone              ResolveErrorCode = ""
	ResolveErrNotAuthorized     ResolveErrorCode = "not-authorized"
	ResolveErrCanonicalNotFound ResolveErrorCode = "canonical-not-found"
	ResolveErrRetiredNotFound   ResolveErrorCode = "retired-id-not-found"
	ResolveErrInvalidTitle      ResolveErrorCode = "invalid-title"
	ResolveErrConflict          ResolveErrorCode = "conflict"
	ResolveErrGeneric           ResolveErrorCode = "generic-failure"
)

// ResolveResult is the resolution entry point's structured outcome.
type ResolveResult struct {
	Success       bool             `json:"success"`
	ArchivedCount int              `json:"archived_count"`
	CanonicalID   string           `json:"canonical_id"`
	ResolutionID  string           `json:"resolution_id,omitempty"`
	ErrorCode     ResolveErrorCode `json:"error,omitempty"`
	ErrorDetail   string           `json:"error_detail,omitempty"`
}
