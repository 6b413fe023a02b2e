package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// appendAudit writes one audit row inside the caller's transaction, so the
// trail commits or rolls back with the transition it records. The timestamp
// is the database clock.
func appendAudit(ctx context.Context, tx pgx.Tx, actor, action, objectType, objectID, notes string, after map[string]any) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_log (actor, action, object_type, object_id, notes, after_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, actor, action, objectType, objectID, notes, after)
	return err
}
