package ledger

import (
	"context"

	"github.com/erauner12/ledgersafe-api/internal/canonical"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Ingest outcomes reported to producers.
const (
	ResultProcessed   = "processed"
	ResultDuplicate   = "duplicate"
	ResultQuarantined = "quarantined"
)

// IngestResult is the outcome of one ingest transition. Every field is
// populated on success; ExceptionID and ReasonCode only when the submission
// landed in (or bounced off) quarantine.
type IngestResult struct {
	TenantID       string  `json:"tenant_id"`
	IdempotencyKey string  `json:"idempotency_key"`
	RawID          int64   `json:"raw_id"`
	Result         string  `json:"result"`
	ExceptionID    *string `json:"exception_id"`
	ReasonCode     *string `json:"reason_code"`

	HTTPStatus int `json:"-"`
}

// Ingest runs the ingest transition for one submitted body: bronze append,
// idempotency upsert, conflict classification, and quarantine when needed.
// All writes happen in one transaction; any failure rolls back all of them.
func Ingest(ctx context.Context, pool *pgxpool.Pool, body []byte) (*IngestResult, error) {
	sub, err := DecodeSubmission(body)
	if err != nil {
		return nil, err
	}

	hash := canonical.ContentHash(sub.Payload)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Bronze append. received_at is the database clock.
	var rawID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO events_raw
			(tenant_id, store_id, source_system, schema_version, occurred_at,
			 event_id, source_event_id, event_type, txn_id, payload_hash, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING raw_id
	`, sub.TenantID, sub.StoreID, sub.SourceSystem, sub.SchemaVersion, sub.OccurredAt,
		sub.EventID, sub.SourceEventID, sub.EventType, sub.TxnID, hash, sub.Payload).Scan(&rawID)
	if err != nil {
		return nil, err
	}

	// Single-statement upsert serializes concurrent ingests of the same key.
	// (xmax = 0) distinguishes a fresh insert from a conflict-update; the
	// returned status / first hash / exception pointer are pre-update values
	// because the DO UPDATE clause never touches them.
	var (
		inserted        bool
		priorStatus     Status
		firstRawID      int64
		hashFirst       string
		lastExceptionID *string
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO events_processed
			(tenant_id, idempotency_key, status, first_seen_at, last_seen_at,
			 first_raw_id, last_raw_id, payload_hash_first, payload_hash_last, processed_at)
		VALUES ($1, $2, 'processed', now(), now(), $3, $3, $4, $4, now())
		ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET
			last_seen_at      = now(),
			last_raw_id       = EXCLUDED.last_raw_id,
			payload_hash_last = EXCLUDED.payload_hash_last
		RETURNING (xmax = 0), status, first_raw_id, payload_hash_first, last_exception_id
	`, sub.TenantID, sub.IdempotencyKey(), rawID, hash).Scan(
		&inserted, &priorStatus, &firstRawID, &hashFirst, &lastExceptionID)
	if err != nil {
		return nil, err
	}

	res := &IngestResult{
		TenantID:       sub.TenantID,
		IdempotencyKey: sub.IdempotencyKey(),
		RawID:          rawID,
	}

	switch {
	case inserted && EventTypeAllowed(sub.EventType):
		res.Result = ResultProcessed
		res.HTTPStatus = 201

	case inserted:
		// First sighting with an event type outside the allowed set.
		excID, err := quarantine(ctx, tx, sub.TenantID, sub.IdempotencyKey(), rawID,
			ReasonUnknownEventType, map[string]any{
				"event_type":    sub.EventType,
				"allowed_types": AllowedEventTypes(),
			})
		if err != nil {
			return nil, err
		}
		res.Result = ResultQuarantined
		res.HTTPStatus = 202
		res.ExceptionID = &excID
		res.ReasonCode = strptr(ReasonUnknownEventType)

	case priorStatus == StatusQuarantined:
		// Key already sits in quarantine with an open exception; point the
		// producer at it rather than opening a second one. last_raw_id and
		// payload_hash_last advanced above so operators see this sighting.
		res.Result = ResultQuarantined
		res.HTTPStatus = 202
		res.ExceptionID = lastExceptionID
		res.ReasonCode = strptr(ReasonAlreadyQuarantined)

	case hash == hashFirst:
		res.Result = ResultDuplicate
		res.HTTPStatus = 200

	default:
		// Same key, different canonical content.
		excID, err := quarantine(ctx, tx, sub.TenantID, sub.IdempotencyKey(), rawID,
			ReasonIdempotencyConflict, map[string]any{
				"payload_hash_first": hashFirst,
				"payload_hash_new":   hash,
				"first_raw_id":       firstRawID,
				"new_raw_id":         rawID,
			})
		if err != nil {
			return nil, err
		}
		res.Result = ResultQuarantined
		res.HTTPStatus = 202
		res.ExceptionID = &excID
		res.ReasonCode = strptr(ReasonIdempotencyConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", res.TenantID).
		Str("idempotency_key", res.IdempotencyKey).
		Int64("raw_id", res.RawID).
		Str("result", res.Result).
		Msg("event ingested")

	return res, nil
}

// quarantine opens an exception for (tenant, key), flips the idempotency
// record to quarantined, and writes the audit entry. Caller's transaction.
func quarantine(ctx context.Context, tx pgx.Tx, tenantID, key string, rawID int64, reason string, details map[string]any) (string, error) {
	excID := "exc_" + uuid.NewString()

	_, err := tx.Exec(ctx, `
		INSERT INTO exceptions (exception_id, tenant_id, idempotency_key, raw_id, reason_code, details_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, excID, tenantID, key, rawID, reason, details)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		UPDATE events_processed SET
			status            = 'quarantined',
			last_error_code   = $3,
			last_exception_id = $4,
			processed_at      = NULL
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key, reason, excID)
	if err != nil {
		return "", err
	}

	after := map[string]any{"reason_code": reason, "raw_id": rawID, "details": details}
	if err := appendAudit(ctx, tx, "system", "quarantine", "exception", excID, reason, after); err != nil {
		return "", err
	}

	log.Warn().
		Str("tenant_id", tenantID).
		Str("idempotency_key", key).
		Int64("raw_id", rawID).
		Str("exception_id", excID).
		Str("reason", reason).
		Msg("submission quarantined")

	return excID, nil
}

func strptr(s string) *string { return &s }
