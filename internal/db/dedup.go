package db

import (
	"context"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// HasProcessed implements reconcile.DedupStore: an event is processed when a
// ledger row exists for it or it appears in the skip log. The ledger row is
// the authoritative record for billed sessions; skipped sessions leave no
// ledger row but must still never be re-prompted, hence the skip log.
func (db *DB) HasProcessed(ctx context.Context, externalEventID string) (bool, error) {
	var processed bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE external_event_id = $1)
			 OR EXISTS (SELECT 1 FROM session_skips WHERE external_event_id = $1)`,
		externalEventID,
	).Scan(&processed)
	return processed, err
}

// MarkProcessed archives a terminal outcome. Billed outcomes are already
// recorded by their ledger row; skipped kinds go into the skip log. Safe to
// repeat.
func (db *DB) MarkProcessed(ctx context.Context, externalEventID string, kind reconcile.OutcomeKind) error {
	if kind == reconcile.OutcomeBilled {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO session_skips (external_event_id, outcome_kind)
		 VALUES ($1, $2)
		 ON CONFLICT (external_event_id) DO NOTHING`,
		externalEventID, string(kind),
	)
	return err
}
