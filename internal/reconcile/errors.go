package reconcile

import (
	"errors"
	"fmt"
)

// ErrUnknownClientRate means no rate record exists for the client and no
// operator override was supplied. It is not surfaced to the operator as a
// failure: the workflow reacts by asking for a manual price.
var ErrUnknownClientRate = errors.New("no rate on file for client")

// TransientStoreError wraps a remote-store failure that survived the retry
// budget. The affected outcome stays unapplied and is retried on the next
// cycle; the event must not be marked processed.
type TransientStoreError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("ledger store %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// CorruptionError reports a mismatch between the cached client balance and
// the sums recomputed from that client's ledger rows. It is fatal for the
// client: writes are halted until someone resolves it by hand. Auto-correction
// could hide a double charge or a lost payment, so it is never attempted.
type CorruptionError struct {
	ClientID     string
	StoredBilled int64
	StoredPaid   int64
	SumBilled    int64
	SumPaid      int64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corruption for client %s: stored billed=%d paid=%d, entries sum billed=%d paid=%d",
		e.ClientID, e.StoredBilled, e.StoredPaid, e.SumBilled, e.SumPaid)
}
