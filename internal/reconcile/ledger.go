package reconcile

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconciler applies confirmed outcomes to the remote ledger. The store
// offers no transaction across the read-balance / append-entry /
// write-balance sequence, so the reconciler serializes per client, re-checks
// the dedup key before writing, and verifies the cached balance against the
// recomputed entry sums before trusting it.
type Reconciler struct {
	ledger      LedgerStore
	maxAttempts int
	baseDelay   time.Duration
	newID       func() string
	log         zerolog.Logger

	mu      sync.Mutex
	clients map[string]*sync.Mutex
	halted  map[string]*CorruptionError
}

type ReconcilerConfig struct {
	// MaxAttempts bounds retries per store call; BaseDelay is the first
	// backoff step, doubled per attempt with jitter.
	MaxAttempts int
	BaseDelay   time.Duration
}

func NewReconciler(ledger LedgerStore, cfg ReconcilerConfig, logger zerolog.Logger) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	return &Reconciler{
		ledger:      ledger,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		newID:       uuid.NewString,
		log:         logger,
		clients:     make(map[string]*sync.Mutex),
		halted:      make(map[string]*CorruptionError),
	}
}

// Apply ledgers a billed outcome, or returns without touching the ledger for
// skipped kinds (the engine records those in the dedup store). Safe to retry:
// if the event id already has a ledger row, Apply is a successful no-op.
func (r *Reconciler) Apply(ctx context.Context, o Outcome) error {
	if o.Kind != OutcomeBilled {
		return nil
	}

	lock := r.clientLock(o.ClientID)
	lock.Lock()
	defer lock.Unlock()

	if cerr := r.haltedFor(o.ClientID); cerr != nil {
		return cerr
	}

	// Re-check the dedup key against the ledger itself. A retry after a
	// partial failure (entry appended, acknowledgment lost) lands here.
	var exists bool
	err := r.withRetry(ctx, "has-entry", func() error {
		var herr error
		exists, herr = r.ledger.HasEntry(ctx, o.ExternalEventID)
		return herr
	})
	if err != nil {
		return err
	}
	if exists {
		r.log.Info().Str("event_id", o.ExternalEventID).Msg("ledger entry already present, skipping write")
		return nil
	}

	var bal ClientBalance
	err = r.withRetry(ctx, "read-balance", func() error {
		var berr error
		bal, berr = r.ledger.ReadBalance(ctx, o.ClientID)
		return berr
	})
	if err != nil {
		return err
	}

	var entries []LedgerEntry
	err = r.withRetry(ctx, "list-entries", func() error {
		var lerr error
		entries, lerr = r.ledger.Entries(ctx, o.ClientID)
		return lerr
	})
	if err != nil {
		return err
	}

	var sumBilled, sumPaid int64
	for _, e := range entries {
		sumBilled += e.BilledAmount
		sumPaid += e.AmountPaid
	}
	if sumBilled != bal.TotalBilled || sumPaid != bal.TotalPaid {
		cerr := &CorruptionError{
			ClientID:     o.ClientID,
			StoredBilled: bal.TotalBilled,
			StoredPaid:   bal.TotalPaid,
			SumBilled:    sumBilled,
			SumPaid:      sumPaid,
		}
		r.halt(o.ClientID, cerr)
		r.log.Error().Err(cerr).Str("client_id", o.ClientID).Msg("halting ledger writes for client")
		return cerr
	}

	entry := LedgerEntry{
		ID:                  r.newID(),
		ExternalEventID:     o.ExternalEventID,
		ClientID:            o.ClientID,
		Date:                o.OccurredAt,
		BilledAmount:        o.BilledAmount,
		AmountPaid:          o.AmountPaid,
		RunningBalanceAfter: bal.Outstanding() + o.BilledAmount - o.AmountPaid,
	}
	if err := r.withRetry(ctx, "append-entry", func() error {
		return r.ledger.AppendEntry(ctx, entry)
	}); err != nil {
		return err
	}

	bal.ClientID = o.ClientID
	bal.TotalBilled += o.BilledAmount
	bal.TotalPaid += o.AmountPaid
	if err := r.withRetry(ctx, "write-balance", func() error {
		return r.ledger.WriteBalance(ctx, bal)
	}); err != nil {
		return err
	}

	r.log.Info().Str("event_id", o.ExternalEventID).Str("client_id", o.ClientID).
		Int64("billed", o.BilledAmount).Int64("paid", o.AmountPaid).
		Int64("outstanding", bal.Outstanding()).Msg("ledger updated")
	return nil
}

// Halted reports the corruption that stopped writes for a client, if any.
func (r *Reconciler) Halted(clientID string) *CorruptionError {
	return r.haltedFor(clientID)
}

func (r *Reconciler) clientLock(clientID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.clients[clientID]
	if !ok {
		lock = &sync.Mutex{}
		r.clients[clientID] = lock
	}
	return lock
}

func (r *Reconciler) haltedFor(clientID string) *CorruptionError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cerr, ok := r.halted[clientID]; ok {
		return cerr
	}
	return nil
}

func (r *Reconciler) halt(clientID string, cerr *CorruptionError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halted[clientID] = cerr
}

// withRetry runs op with bounded exponential backoff and jitter, honoring
// the context. Exhaustion surfaces a TransientStoreError so the cycle can
// leave the outcome for the next run.
func (r *Reconciler) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &TransientStoreError{Op: op, Attempts: attempt - 1, Err: err}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}
		r.log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Msg("ledger store call failed, retrying")
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return &TransientStoreError{Op: op, Attempts: attempt, Err: ctx.Err()}
		}
		delay *= 2
	}
	return &TransientStoreError{Op: op, Attempts: r.maxAttempts, Err: lastErr}
}
