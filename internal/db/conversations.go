package db

import (
	"context"
	"time"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// Conversation persistence (reconcile.ConversationStore). One row per open
// conversation; terminal rows stay until the engine has applied the outcome.

func (db *DB) Save(ctx context.Context, st *reconcile.ConversationState) error {
	var lastPromptAt *time.Time
	if !st.LastPromptAt.IsZero() {
		lastPromptAt = &st.LastPromptAt
	}
	var outcomeKind *string
	var outcomeBilled, outcomePaid *int64
	if st.Outcome != nil {
		kind := string(st.Outcome.Kind)
		outcomeKind = &kind
		outcomeBilled = &st.Outcome.BilledAmount
		outcomePaid = &st.Outcome.AmountPaid
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO conversations (
			external_event_id, client_id, scheduled_start, duration_minutes,
			status, created_at, last_prompt_at, reminder_sent,
			attendance_confirmed, price_override, payment_received, payment_full,
			outcome_kind, outcome_billed, outcome_paid, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (external_event_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_prompt_at = EXCLUDED.last_prompt_at,
			reminder_sent = EXCLUDED.reminder_sent,
			attendance_confirmed = EXCLUDED.attendance_confirmed,
			price_override = EXCLUDED.price_override,
			payment_received = EXCLUDED.payment_received,
			payment_full = EXCLUDED.payment_full,
			outcome_kind = EXCLUDED.outcome_kind,
			outcome_billed = EXCLUDED.outcome_billed,
			outcome_paid = EXCLUDED.outcome_paid,
			updated_at = EXCLUDED.updated_at`,
		st.ExternalEventID, st.ClientID, st.ScheduledStart, st.DurationMinutes,
		string(st.Status), st.CreatedAt, lastPromptAt, st.ReminderSent,
		st.AttendanceConfirmed, st.PriceOverride, st.PaymentReceived, st.PaymentFull,
		outcomeKind, outcomeBilled, outcomePaid, time.Now(),
	)
	return err
}

func (db *DB) Delete(ctx context.Context, externalEventID string) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM conversations WHERE external_event_id = $1`,
		externalEventID,
	)
	return err
}

func (db *DB) LoadOpen(ctx context.Context) ([]*reconcile.ConversationState, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT external_event_id, client_id, scheduled_start, duration_minutes,
			status, created_at, last_prompt_at, reminder_sent,
			attendance_confirmed, price_override, payment_received, payment_full,
			outcome_kind, outcome_billed, outcome_paid
		 FROM conversations ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*reconcile.ConversationState
	for rows.Next() {
		var st reconcile.ConversationState
		var status string
		var lastPromptAt *time.Time
		var outcomeKind *string
		var outcomeBilled, outcomePaid *int64
		if err := rows.Scan(
			&st.ExternalEventID, &st.ClientID, &st.ScheduledStart, &st.DurationMinutes,
			&status, &st.CreatedAt, &lastPromptAt, &st.ReminderSent,
			&st.AttendanceConfirmed, &st.PriceOverride, &st.PaymentReceived, &st.PaymentFull,
			&outcomeKind, &outcomeBilled, &outcomePaid,
		); err != nil {
			return nil, err
		}
		st.Status = reconcile.Status(status)
		if lastPromptAt != nil {
			st.LastPromptAt = *lastPromptAt
		}
		if outcomeKind != nil {
			st.Outcome = &reconcile.Outcome{
				ExternalEventID: st.ExternalEventID,
				ClientID:        st.ClientID,
				BilledAmount:    derefInt64(outcomeBilled),
				AmountPaid:      derefInt64(outcomePaid),
				OccurredAt:      st.ScheduledStart,
				Kind:            reconcile.OutcomeKind(*outcomeKind),
			}
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
