package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// Rate implements reconcile.RateDirectory. A missing rate is not an error:
// the workflow reacts by asking the operator for a manual price.
func (db *DB) Rate(ctx context.Context, clientID string) (*reconcile.ClientRate, error) {
	var rate reconcile.ClientRate
	err := db.pool.QueryRow(ctx,
		`SELECT client_id, flat_per_session, per_hour, currency FROM client_rates WHERE client_id = $1`,
		clientID,
	).Scan(&rate.ClientID, &rate.FlatPerSession, &rate.PerHour, &rate.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (db *DB) UpsertRate(ctx context.Context, rate reconcile.ClientRate) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO client_rates (client_id, flat_per_session, per_hour, currency)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_id) DO UPDATE SET
			flat_per_session = EXCLUDED.flat_per_session,
			per_hour = EXCLUDED.per_hour,
			currency = EXCLUDED.currency`,
		rate.ClientID, rate.FlatPerSession, rate.PerHour, rate.Currency,
	)
	return err
}

func (db *DB) ListRates(ctx context.Context) ([]reconcile.ClientRate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT client_id, flat_per_session, per_hour, currency FROM client_rates ORDER BY client_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reconcile.ClientRate
	for rows.Next() {
		var r reconcile.ClientRate
		if err := rows.Scan(&r.ClientID, &r.FlatPerSession, &r.PerHour, &r.Currency); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
