// Package resolve validates and executes duplicate-group resolutions.
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rootandstem/curriculum-cli/internal/model"
	"github.com/rootandstem/curriculum-cli/internal/store"
)

// maxTitleLength bounds rewritten titles, matching the catalog's limit.
const maxTitleLength = 200

// Authorizer reports whether an actor may resolve duplicate groups.
type Authorizer func(ctx context.Context, actor string) (bool, error)

// AllowActors builds an Authorizer from a fixed allow-list. An empty
// list allows any non-empty actor, for single-operator installs.
func AllowActors(actors ...string) Authorizer {
	allowed := make(map[string]bool, len(actors))
	for _, a := range actors {
		allowed[a] = true
	}
	return func(_ context.Context, actor string) (bool, error) {
		if len(allowed) == 0 {
			return actor != "", nil
		}
		return allowed[actor], nil
	}
}

// Engine coordinates resolution requests: validates input, checks
// authorization, and delegates the transactional work to the store.
type Engine struct {
	store     store.Store
	authorize Authorizer
}

// NewEngine creates a resolution engine.
func NewEngine(st store.Store, auth Authorizer) *Engine {
	if auth == nil {
		auth = AllowActors()
	}
	return &Engine{store: st, authorize: auth}
}

// Resolve executes one resolution request and returns a structured
// result. It never panics and never returns a Go error: every failure
// maps to an error code in the result so callers at the CLI and HTTP
// edges can render it uniformly.
func (e *Engine) Resolve(ctx context.Context, req model.ResolveRequest) model.ResolveResult {
	start := time.Now()

	if req.Mode == "" {
		req.Mode = model.ResolutionSingle
	}

	if code, detail := e.validate(ctx, &req); code != model.ResolveErrNone {
		zap.L().Warn("resolution rejected",
			zap.String("group_id", req.GroupID),
			zap.String("actor", req.Actor),
			zap.String("error", string(code)),
			zap.String("detail", detail))
		return model.ResolveResult{ErrorCode: code, ErrorDetail: detail}
	}

	// Evidence groups are keyed by submission id; a keep-all dismissal
	// written under any other key would never be consulted by later
	// detection runs, so reject group ids that name no submission.
	if req.Mode == model.ResolutionKeepAll {
		if _, err := e.store.GetSubmission(ctx, req.GroupID); err != nil {
			code := model.ResolveErrGeneric
			detail := eris.ToString(err, false)
			if eris.Is(err, store.ErrNotFound) {
				detail = "group " + req.GroupID + " does not name a submission; dismissals are keyed by submission id"
			}
			zap.L().Warn("resolution rejected",
				zap.String("group_id", req.GroupID),
				zap.String("error", string(code)),
				zap.String("detail", detail))
			return model.ResolveResult{ErrorCode: code, ErrorDetail: detail}
		}
	}

	rec, err := e.store.ResolveGroup(ctx, req)
	if err != nil {
		code := classifyStoreError(err)
		zap.L().Error("resolution failed",
			zap.String("group_id", req.GroupID),
			zap.String("canonical_id", req.CanonicalID),
			zap.String("error", string(code)),
			zap.Error(err))
		return model.ResolveResult{ErrorCode: code, ErrorDetail: eris.ToString(err, false)}
	}

	archived := 0
	if req.Mode != model.ResolutionKeepAll {
		archived = len(req.RetiredIDs)
	}

	zap.L().Info("group resolved",
		zap.String("group_id", req.GroupID),
		zap.String("canonical_id", req.CanonicalID),
		zap.String("mode", string(req.Mode)),
		zap.Int("archived", archived),
		zap.String("actor", req.Actor),
		zap.Duration("duration", time.Since(start)))

	return model.ResolveResult{
		Success:       true,
		ArchivedCount: archived,
		CanonicalID:   req.CanonicalID,
		ResolutionID:  rec.ID,
	}
}

// validate applies the request-shape checks that do not require
// catalog state. It also dedupes retired ids in place.
func (e *Engine) validate(ctx context.Context, req *model.ResolveRequest) (model.ResolveErrorCode, string) {
	if req.Actor == "" {
		return model.ResolveErrNotAuthorized, "actor is required"
	}
	ok, err := e.authorize(ctx, req.Actor)
	if err != nil {
		return model.ResolveErrGeneric, "authorization check failed: " + err.Error()
	}
	if !ok {
		return model.ResolveErrNotAuthorized, "actor " + req.Actor + " may not resolve groups"
	}

	if req.GroupID == "" {
		return model.ResolveErrGeneric, "group id is required"
	}

	switch req.Mode {
	case model.ResolutionSingle, model.ResolutionSplit:
		if req.CanonicalID == "" {
			return model.ResolveErrCanonicalNotFound, "canonical id is required"
		}
		if len(req.RetiredIDs) == 0 {
			return model.ResolveErrGeneric, "at least one retired id is required"
		}
	case model.ResolutionKeepAll:
		if req.CanonicalID == "" {
			return model.ResolveErrCanonicalNotFound, "canonical id is required"
		}
	default:
		return model.ResolveErrGeneric, "unknown resolution mode " + string(req.Mode)
	}

	seen := make(map[string]bool, len(req.RetiredIDs))
	deduped := req.RetiredIDs[:0]
	for _, rid := range req.RetiredIDs {
		if rid == req.CanonicalID {
			return model.ResolveErrConflict, "canonical document " + rid + " cannot also be retired"
		}
		if seen[rid] {
			continue
		}
		seen[rid] = true
		deduped = append(deduped, rid)
	}
	req.RetiredIDs = deduped

	for id, title := range req.TitleRewrites {
		trimmed := strings.TrimSpace(title)
		if trimmed == "" {
			return model.ResolveErrInvalidTitle, "rewritten title for " + id + " is empty"
		}
		if len(trimmed) > maxTitleLength {
			return model.ResolveErrInvalidTitle, "rewritten title for " + id + " exceeds the length limit"
		}
		req.TitleRewrites[id] = trimmed
	}
	return model.ResolveErrNone, ""
}

// classifyStoreError maps store sentinel errors to structured codes.
func classifyStoreError(err error) model.ResolveErrorCode {
	switch {
	case eris.Is(err, store.ErrCanonicalNotFound):
		return model.ResolveErrCanonicalNotFound
	case eris.Is(err, store.ErrRetiredNotFound):
		return model.ResolveErrRetiredNotFound
	case eris.Is(err, store.ErrInvalidTransition), eris.Is(err, store.ErrAlreadyClaimed):
		return model.ResolveErrConflict
	default:
		return model.ResolveErrGeneric
	}
}
