package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyCounts breaks the ledger down by status.
type IdempotencyCounts struct {
	Processed   int64 `json:"processed"`
	Quarantined int64 `json:"quarantined"`
	Ignored     int64 `json:"ignored"`
}

// HealthCounts are the lightweight counters the operator console renders.
type HealthCounts struct {
	EventsRaw      int64             `json:"events_raw"`
	ExceptionsOpen int64             `json:"exceptions_open"`
	Idempotency    IdempotencyCounts `json:"idempotency"`
}

// HealthReport is the /v1/health body.
type HealthReport struct {
	Status string       `json:"status"`
	DB     string       `json:"db"`
	DBTime string       `json:"db_time,omitempty"`
	Counts HealthCounts `json:"counts"`
	Error  string       `json:"error,omitempty"`
}

// Health probes the database and gathers the console counters. Read-only;
// may observe slightly stale counts under concurrent writes.
func Health(ctx context.Context, pool *pgxpool.Pool) (*HealthReport, error) {
	var dbNow time.Time
	if err := pool.QueryRow(ctx, `SELECT now()`).Scan(&dbNow); err != nil {
		return nil, err
	}

	rep := &HealthReport{Status: "ok", DB: "ok", DBTime: dbNow.UTC().Format(time.RFC3339Nano)}

	if err := pool.QueryRow(ctx, `SELECT count(*) FROM events_raw`).Scan(&rep.Counts.EventsRaw); err != nil {
		return nil, err
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM exceptions WHERE status = 'open'`).Scan(&rep.Counts.ExceptionsOpen); err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `SELECT status, count(*) FROM events_processed GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch Status(status) {
		case StatusProcessed:
			rep.Counts.Idempotency.Processed = n
		case StatusQuarantined:
			rep.Counts.Idempotency.Quarantined = n
		case StatusIgnored:
			rep.Counts.Idempotency.Ignored = n
		}
	}
	return rep, rows.Err()
}
