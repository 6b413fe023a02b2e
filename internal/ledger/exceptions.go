package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so row fetchers work
// inside and outside transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const exceptionColumns = `
	exception_id, tenant_id, idempotency_key, raw_id, reason_code, details_json,
	status, created_at, resolved_at, resolution_action, resolution_notes,
	resolution_actor, override_patch, replay_attempts, last_replay_at, last_replay_status`

func scanException(row pgx.Row) (*Exception, error) {
	var (
		e            Exception
		detailsBytes []byte
		patchBytes   []byte
	)
	err := row.Scan(
		&e.ExceptionID, &e.TenantID, &e.IdempotencyKey, &e.RawID, &e.ReasonCode, &detailsBytes,
		&e.Status, &e.CreatedAt, &e.ResolvedAt, &e.ResolutionAction, &e.ResolutionNotes,
		&e.ResolutionActor, &patchBytes, &e.ReplayAttempts, &e.LastReplayAt, &e.LastReplayStatus)
	if err != nil {
		return nil, err
	}
	if len(detailsBytes) > 0 {
		if e.Details, err = DecodeJSONObject(detailsBytes); err != nil {
			return nil, err
		}
	}
	if len(patchBytes) > 0 {
		// override_patch may legitimately be JSON null
		if m, err := DecodeJSONObject(patchBytes); err == nil {
			e.OverridePatch = m
		}
	}
	return &e, nil
}

// ListExceptions returns the operator queue, newest first.
func ListExceptions(ctx context.Context, pool *pgxpool.Pool, status, tenantID string, limit int) ([]Exception, error) {
	if status != ExceptionOpen && status != ExceptionResolved {
		return nil, badRequest(CodeInvalidStatus, "status must be open or resolved, got %q", status)
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT ` + exceptionColumns + `
		FROM exceptions
		WHERE status = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := pool.Query(ctx, query, status, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Exception, 0, limit)
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

// ExceptionDetail is the operator view of one exception: the record it
// quarantined and the raw events needed for side-by-side comparison.
type ExceptionDetail struct {
	Exception     *Exception `json:"exception"`
	RawEvent      *RawEvent  `json:"raw_event"`
	Record        *Record    `json:"events_processed"`
	FirstRawEvent *RawEvent  `json:"first_raw_event"`
	LastRawEvent  *RawEvent  `json:"last_raw_event"`
}

// GetException loads one exception with its triggering raw event, the
// idempotency record, and the record's first/last raw events.
func GetException(ctx context.Context, pool *pgxpool.Pool, exceptionID string) (*ExceptionDetail, error) {
	exc, err := scanException(pool.QueryRow(ctx,
		`SELECT `+exceptionColumns+` FROM exceptions WHERE exception_id = $1`, exceptionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("exception not found: %s", exceptionID)
	}
	if err != nil {
		return nil, err
	}

	detail := &ExceptionDetail{Exception: exc}

	if detail.RawEvent, err = fetchRawEvent(ctx, pool, exc.RawID); err != nil {
		return nil, err
	}

	rec, err := fetchRecord(ctx, pool, exc.TenantID, exc.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	detail.Record = rec
	if rec == nil {
		return detail, nil
	}

	if detail.FirstRawEvent, err = fetchRawEvent(ctx, pool, rec.FirstRawID); err != nil {
		return nil, err
	}
	if rec.LastRawID == rec.FirstRawID {
		detail.LastRawEvent = detail.FirstRawEvent
	} else if detail.LastRawEvent, err = fetchRawEvent(ctx, pool, rec.LastRawID); err != nil {
		return nil, err
	}
	return detail, nil
}

// fetchRawEvent reads one bronze row; nil when absent.
func fetchRawEvent(ctx context.Context, q querier, rawID int64) (*RawEvent, error) {
	var (
		ev           RawEvent
		payloadBytes []byte
	)
	err := q.QueryRow(ctx, `
		SELECT raw_id, tenant_id, store_id, source_system, schema_version,
		       received_at, occurred_at, event_id, source_event_id, event_type,
		       txn_id, payload_hash, payload_json
		FROM events_raw WHERE raw_id = $1
	`, rawID).Scan(
		&ev.RawID, &ev.TenantID, &ev.StoreID, &ev.SourceSystem, &ev.SchemaVersion,
		&ev.ReceivedAt, &ev.OccurredAt, &ev.EventID, &ev.SourceEventID, &ev.EventType,
		&ev.TxnID, &ev.PayloadHash, &payloadBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ev.Payload, err = DecodeJSONObject(payloadBytes); err != nil {
		return nil, err
	}
	return &ev, nil
}

// fetchRecord reads one idempotency ledger row; nil when absent.
func fetchRecord(ctx context.Context, q querier, tenantID, key string) (*Record, error) {
	var rec Record
	err := q.QueryRow(ctx, `
		SELECT tenant_id, idempotency_key, status, first_seen_at, last_seen_at,
		       first_raw_id, last_raw_id, payload_hash_first, payload_hash_last,
		       processed_at, last_error_code, last_exception_id
		FROM events_processed WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key).Scan(
		&rec.TenantID, &rec.IdempotencyKey, &rec.Status, &rec.FirstSeenAt, &rec.LastSeenAt,
		&rec.FirstRawID, &rec.LastRawID, &rec.PayloadHashFirst, &rec.PayloadHashLast,
		&rec.ProcessedAt, &rec.LastErrorCode, &rec.LastExceptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
