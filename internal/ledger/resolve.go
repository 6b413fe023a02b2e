package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/erauner12/ledgersafe-api/internal/canonical"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ResolveRequest is the operator's resolution body.
type ResolveRequest struct {
	Action          string         `json:"action"`
	Actor           string         `json:"actor"`
	ResolutionNotes string         `json:"resolution_notes"`
	OverridePatch   map[string]any `json:"override_patch"`
	CanonicalRawID  *int64         `json:"canonical_raw_id"`
}

// ReplayOutcome describes what (if anything) was replayed during resolution.
type ReplayOutcome struct {
	Attempted        bool    `json:"attempted"`
	Result           *string `json:"result,omitempty"`
	CanonicalRawID   *int64  `json:"canonical_raw_id,omitempty"`
	FinalPayloadHash *string `json:"final_payload_hash,omitempty"`
}

// ResolveResult is returned on successful resolution.
type ResolveResult struct {
	ExceptionID string        `json:"exception_id"`
	Status      string        `json:"status"`
	Replay      ReplayOutcome `json:"replay"`
}

// Resolve closes an open exception. mark_resolved_no_replay flips the
// idempotency record to ignored; override_and_replay re-canonicalizes the
// chosen raw payload under the operator's merge patch, revalidates it, and
// rewrites the record's conflict-detection anchor to the patched hash. One
// transaction; the exception row is locked for the duration.
func Resolve(ctx context.Context, pool *pgxpool.Pool, exceptionID string, req ResolveRequest) (*ResolveResult, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, badRequest(CodeValidationError, "actor is required")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		tenantID  string
		key       string
		excRawID  int64
		excStatus string
	)
	err = tx.QueryRow(ctx, `
		SELECT tenant_id, idempotency_key, raw_id, status
		FROM exceptions
		WHERE exception_id = $1
		FOR UPDATE
	`, exceptionID).Scan(&tenantID, &key, &excRawID, &excStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("exception not found: %s", exceptionID)
	}
	if err != nil {
		return nil, err
	}
	if excStatus != ExceptionOpen {
		return nil, conflict(CodeAlreadyResolved, "exception %s is already resolved", exceptionID)
	}

	var recordStatus Status
	err = tx.QueryRow(ctx, `
		SELECT status FROM events_processed
		WHERE tenant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, tenantID, key).Scan(&recordStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conflict(CodeMissingIdempotencyRecord, "no idempotency record for tenant %s key %s", tenantID, key)
	}
	if err != nil {
		return nil, err
	}

	var res *ResolveResult
	switch req.Action {
	case ActionMarkResolvedNoReplay:
		res, err = resolveNoReplay(ctx, tx, exceptionID, tenantID, key, req)
	case ActionOverrideAndReplay:
		res, err = resolveAndReplay(ctx, tx, exceptionID, tenantID, key, excRawID, req)
	default:
		return nil, badRequest(CodeInvalidAction, "invalid action: %q", req.Action)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("exception_id", exceptionID).
		Str("tenant_id", tenantID).
		Str("idempotency_key", key).
		Str("action", req.Action).
		Str("actor", req.Actor).
		Msg("exception resolved")

	return res, nil
}

func resolveNoReplay(ctx context.Context, tx pgx.Tx, exceptionID, tenantID, key string, req ResolveRequest) (*ResolveResult, error) {
	_, err := tx.Exec(ctx, `
		UPDATE exceptions SET
			status             = 'resolved',
			resolved_at        = now(),
			resolution_action  = $2,
			resolution_notes   = $3,
			resolution_actor   = $4,
			last_replay_status = $5
		WHERE exception_id = $1
	`, exceptionID, ActionMarkResolvedNoReplay, req.ResolutionNotes, req.Actor, ReplayNotReplayed)
	if err != nil {
		return nil, err
	}

	// The exception pointer stays on the ignored record for audit linkage.
	_, err = tx.Exec(ctx, `
		UPDATE events_processed SET
			status            = 'ignored',
			processed_at      = now(),
			last_error_code   = $3,
			last_exception_id = $4
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key, ReasonIgnoredByOperator, exceptionID)
	if err != nil {
		return nil, err
	}

	after := map[string]any{"status": ExceptionResolved, "record_status": StatusIgnored}
	if err := appendAudit(ctx, tx, req.Actor, "resolve_no_replay", "exception", exceptionID, req.ResolutionNotes, after); err != nil {
		return nil, err
	}

	return &ResolveResult{
		ExceptionID: exceptionID,
		Status:      ExceptionResolved,
		Replay:      ReplayOutcome{Attempted: false},
	}, nil
}

func resolveAndReplay(ctx context.Context, tx pgx.Tx, exceptionID, tenantID, key string, excRawID int64, req ResolveRequest) (*ResolveResult, error) {
	canonicalRawID := excRawID
	if req.CanonicalRawID != nil {
		canonicalRawID = *req.CanonicalRawID
	}

	var (
		rawTenantID  string
		payloadBytes []byte
	)
	err := tx.QueryRow(ctx, `
		SELECT tenant_id, payload_json FROM events_raw WHERE raw_id = $1
	`, canonicalRawID).Scan(&rawTenantID, &payloadBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, badRequest(CodeInvalidCanonicalRawID, "no raw event with raw_id %d", canonicalRawID)
	}
	if err != nil {
		return nil, err
	}
	// Cross-tenant replay is disallowed outright.
	if rawTenantID != tenantID {
		return nil, badRequest(CodeTenantMismatch, "raw event %d belongs to a different tenant", canonicalRawID)
	}

	basePayload, err := DecodeJSONObject(payloadBytes)
	if err != nil {
		return nil, err
	}

	finalPayload := canonical.MergePatch(basePayload, anyPatch(req.OverridePatch))

	eventType := ""
	if obj, ok := finalPayload.(map[string]any); ok {
		if v, ok := getString(obj, "event_type"); ok {
			eventType = NormalizeEventType(v)
		}
	}
	if eventType == "" {
		return nil, badRequest(CodeMissingEventType, "patched payload has no event_type")
	}
	if !EventTypeAllowed(eventType) {
		return nil, conflict(CodeReplayValidationFailed, "patched event_type %q is not in the allowed set", eventType)
	}

	finalHash := canonical.ContentHash(finalPayload)

	// The patched payload becomes the new de-duplication anchor: both hashes
	// move to final_hash so an identical future submission reads as a
	// duplicate. Bronze rows are untouched.
	_, err = tx.Exec(ctx, `
		UPDATE events_processed SET
			status             = 'processed',
			processed_at       = now(),
			payload_hash_first = $3,
			payload_hash_last  = $3,
			last_error_code    = NULL,
			last_exception_id  = NULL
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key, finalHash)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE exceptions SET
			status             = 'resolved',
			resolved_at        = now(),
			resolution_action  = $2,
			resolution_notes   = $3,
			resolution_actor   = $4,
			override_patch     = $5,
			replay_attempts    = replay_attempts + 1,
			last_replay_at     = now(),
			last_replay_status = $6
		WHERE exception_id = $1
	`, exceptionID, ActionOverrideAndReplay, req.ResolutionNotes, req.Actor, req.OverridePatch, ReplayProcessed)
	if err != nil {
		return nil, err
	}

	after := map[string]any{
		"final_payload_hash": finalHash,
		"canonical_raw_id":   canonicalRawID,
		"record_status":      StatusProcessed,
	}
	if err := appendAudit(ctx, tx, req.Actor, "resolve_and_replay", "exception", exceptionID, req.ResolutionNotes, after); err != nil {
		return nil, err
	}

	replayResult := ReplayProcessed
	return &ResolveResult{
		ExceptionID: exceptionID,
		Status:      ExceptionResolved,
		Replay: ReplayOutcome{
			Attempted:        true,
			Result:           &replayResult,
			CanonicalRawID:   &canonicalRawID,
			FinalPayloadHash: &finalHash,
		},
	}, nil
}

// anyPatch widens a possibly-nil map so an absent override_patch applies as
// the empty patch rather than a wholesale null replacement.
func anyPatch(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
