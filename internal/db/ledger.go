package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// The ledger methods implement reconcile.LedgerStore. Each call is a single
// statement, individually atomic; there is deliberately no transaction across
// them. The reconciler owns the cross-call consistency argument.

func (db *DB) ReadBalance(ctx context.Context, clientID string) (reconcile.ClientBalance, error) {
	bal := reconcile.ClientBalance{ClientID: clientID}
	err := db.pool.QueryRow(ctx,
		`SELECT total_billed, total_paid FROM client_balances WHERE client_id = $1`,
		clientID,
	).Scan(&bal.TotalBilled, &bal.TotalPaid)
	if errors.Is(err, pgx.ErrNoRows) {
		return bal, nil
	}
	if err != nil {
		return reconcile.ClientBalance{}, err
	}
	return bal, nil
}

func (db *DB) WriteBalance(ctx context.Context, bal reconcile.ClientBalance) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO client_balances (client_id, total_billed, total_paid, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_id) DO UPDATE
		 SET total_billed = EXCLUDED.total_billed,
			 total_paid = EXCLUDED.total_paid,
			 updated_at = EXCLUDED.updated_at`,
		bal.ClientID, bal.TotalBilled, bal.TotalPaid, time.Now(),
	)
	return err
}

// AppendEntry is conflict-tolerant on the external event id, so a retried
// append after a lost acknowledgment cannot create a second row.
func (db *DB) AppendEntry(ctx context.Context, e reconcile.LedgerEntry) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, external_event_id, client_id, session_date, billed_amount, amount_paid, running_balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (external_event_id) DO NOTHING`,
		e.ID, e.ExternalEventID, e.ClientID, e.Date, e.BilledAmount, e.AmountPaid, e.RunningBalanceAfter,
	)
	return err
}

func (db *DB) Entries(ctx context.Context, clientID string) ([]reconcile.LedgerEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, external_event_id, client_id, session_date, billed_amount, amount_paid, running_balance_after
		 FROM ledger_entries WHERE client_id = $1 ORDER BY session_date, created_at`,
		clientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reconcile.LedgerEntry
	for rows.Next() {
		var e reconcile.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ExternalEventID, &e.ClientID, &e.Date, &e.BilledAmount, &e.AmountPaid, &e.RunningBalanceAfter); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) HasEntry(ctx context.Context, externalEventID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE external_event_id = $1)`,
		externalEventID,
	).Scan(&exists)
	return exists, err
}

// ListBalances returns every cached client balance, for the admin API.
func (db *DB) ListBalances(ctx context.Context) ([]reconcile.ClientBalance, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT client_id, total_billed, total_paid FROM client_balances ORDER BY client_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reconcile.ClientBalance
	for rows.Next() {
		var b reconcile.ClientBalance
		if err := rows.Scan(&b.ClientID, &b.TotalBilled, &b.TotalPaid); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
