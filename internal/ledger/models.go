// Package ledger implements the ingest-and-quarantine state machine: the
// append-only bronze layer, the per-key idempotency ledger, the exception
// registry, and the operator resolve/replay transitions. Every operation runs
// as a single database transaction; all timestamps come from the database
// clock so one transaction sees one consistent instant.
package ledger

import (
	"time"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	StatusProcessed   Status = "processed"
	StatusQuarantined Status = "quarantined"
	StatusIgnored     Status = "ignored"
)

// Reason codes attached to quarantines and 2xx outcomes.
const (
	ReasonUnknownEventType    = "UNKNOWN_EVENT_TYPE"
	ReasonIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ReasonAlreadyQuarantined  = "ALREADY_QUARANTINED"
	ReasonIgnoredByOperator   = "IGNORED_BY_OPERATOR"
)

// Operator resolution actions.
const (
	ActionMarkResolvedNoReplay = "mark_resolved_no_replay"
	ActionOverrideAndReplay    = "override_and_replay"
)

// Replay status values on a resolved exception.
const (
	ReplayNotReplayed = "not_replayed"
	ReplayProcessed   = "processed"
)

// Exception lifecycle states.
const (
	ExceptionOpen     = "open"
	ExceptionResolved = "resolved"
)

// RawEvent is one bronze-layer row. Immutable once written.
type RawEvent struct {
	RawID         int64          `json:"raw_id"`
	TenantID      string         `json:"tenant_id"`
	StoreID       string         `json:"store_id"`
	SourceSystem  string         `json:"source_system"`
	SchemaVersion string         `json:"schema_version"`
	ReceivedAt    time.Time      `json:"received_at"`
	OccurredAt    time.Time      `json:"occurred_at"`
	EventID       string         `json:"event_id"`
	SourceEventID *string        `json:"source_event_id"`
	EventType     string         `json:"event_type"`
	TxnID         string         `json:"txn_id"`
	PayloadHash   string         `json:"payload_hash"`
	Payload       map[string]any `json:"payload_json"`
}

// Record is the mutable idempotency ledger row for one (tenant, key).
//
// PayloadHashFirst is the conflict-detection anchor: the hash future
// submissions must match to count as duplicates. It is set at creation and
// rewritten only by a successful replay.
type Record struct {
	TenantID         string     `json:"tenant_id"`
	IdempotencyKey   string     `json:"idempotency_key"`
	Status           Status     `json:"status"`
	FirstSeenAt      time.Time  `json:"first_seen_at"`
	LastSeenAt       time.Time  `json:"last_seen_at"`
	FirstRawID       int64      `json:"first_raw_id"`
	LastRawID        int64      `json:"last_raw_id"`
	PayloadHashFirst string     `json:"payload_hash_first"`
	PayloadHashLast  string     `json:"payload_hash_last"`
	ProcessedAt      *time.Time `json:"processed_at"`
	LastErrorCode    *string    `json:"last_error_code"`
	LastExceptionID  *string    `json:"last_exception_id"`
}

// Exception is an operator-visible quarantine record. Born when an ingest
// quarantines a key; resolved (never deleted) by operator action.
type Exception struct {
	ExceptionID      string         `json:"exception_id"`
	TenantID         string         `json:"tenant_id"`
	IdempotencyKey   string         `json:"idempotency_key"`
	RawID            int64          `json:"raw_id"`
	ReasonCode       string         `json:"reason_code"`
	Details          map[string]any `json:"details_json"`
	Status           string         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	ResolvedAt       *time.Time     `json:"resolved_at"`
	ResolutionAction *string        `json:"resolution_action"`
	ResolutionNotes  *string        `json:"resolution_notes"`
	ResolutionActor  *string        `json:"resolution_actor"`
	OverridePatch    map[string]any `json:"override_patch"`
	ReplayAttempts   int            `json:"replay_attempts"`
	LastReplayAt     *time.Time     `json:"last_replay_at"`
	LastReplayStatus *string        `json:"last_replay_status"`
}
