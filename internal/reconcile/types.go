package reconcile

import (
	"context"
	"time"
)

// OutcomeKind classifies how a confirmation conversation ended.
type OutcomeKind string

const (
	OutcomeBilled         OutcomeKind = "BILLED"
	OutcomeSkippedNotHeld OutcomeKind = "SKIPPED_NOT_HELD"
	OutcomeSkippedExpired OutcomeKind = "SKIPPED_EXPIRED"
)

// Candidate is a calendar event provisionally eligible for billing.
// Immutable once produced by the normalizer.
type Candidate struct {
	ExternalEventID string
	ClientID        string
	ScheduledStart  time.Time
	DurationMinutes int
	RawTags         []string
}

// Outcome is the immutable result of a terminated confirmation conversation.
// Amounts are in currency minor units (cents).
type Outcome struct {
	ExternalEventID string
	ClientID        string
	BilledAmount    int64
	AmountPaid      int64
	OccurredAt      time.Time
	Kind            OutcomeKind
}

// ClientRate is read-only reference data owned by the client directory.
// FlatPerSession takes precedence over PerHour; zero means unset.
type ClientRate struct {
	ClientID       string
	FlatPerSession int64
	PerHour        int64
	Currency       string
}

// LedgerEntry is one ledger row per billed session. ExternalEventID is the
// dedup key visible in the ledger itself, so the remote store stays the
// source of truth across restarts.
type LedgerEntry struct {
	ID                  string
	ExternalEventID     string
	ClientID            string
	Date                time.Time
	BilledAmount        int64
	AmountPaid          int64
	RunningBalanceAfter int64
}

// ClientBalance caches per-client totals. It must always match the sums over
// that client's ledger entries; the reconciler verifies this before writing.
type ClientBalance struct {
	ClientID    string
	TotalBilled int64
	TotalPaid   int64
}

func (b ClientBalance) Outstanding() int64 {
	return b.TotalBilled - b.TotalPaid
}

// Status of a confirmation conversation. Terminal statuses are final: no
// transition ever leaves them.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAwaitingPrice Status = "awaiting_price"
	StatusConfirmed     Status = "confirmed"
	StatusDeclined      Status = "declined"
	StatusExpired       Status = "expired"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// ConversationState is the persisted state of one confirmation conversation,
// keyed by the candidate's external event id. It is owned exclusively by the
// workflow; other components only ever see the terminal Outcome.
type ConversationState struct {
	ExternalEventID string
	ClientID        string
	ScheduledStart  time.Time
	DurationMinutes int

	Status       Status
	CreatedAt    time.Time
	LastPromptAt time.Time
	ReminderSent bool

	AttendanceConfirmed *bool
	PriceOverride       *int64
	PaymentReceived     *int64
	PaymentFull         bool

	// Outcome is set exactly once, when the conversation turns terminal. The
	// row is kept until the engine has ledgered and dedup-marked the outcome.
	Outcome *Outcome
}

// LedgerStore is the remote ledger boundary. Each call is individually
// atomic but there is no transaction across calls; the reconciler is
// responsible for detecting inconsistencies that result.
type LedgerStore interface {
	ReadBalance(ctx context.Context, clientID string) (ClientBalance, error)
	WriteBalance(ctx context.Context, bal ClientBalance) error
	AppendEntry(ctx context.Context, entry LedgerEntry) error
	Entries(ctx context.Context, clientID string) ([]LedgerEntry, error)
	HasEntry(ctx context.Context, externalEventID string) (bool, error)
}

// DedupStore records which external event ids already produced a terminal
// outcome. Backed by ledger-row presence plus an explicit skip log for
// non-billed outcomes.
type DedupStore interface {
	HasProcessed(ctx context.Context, externalEventID string) (bool, error)
	MarkProcessed(ctx context.Context, externalEventID string, kind OutcomeKind) error
}

// RateDirectory reads client rates. A nil rate with nil error means no rate
// is on file for the client.
type RateDirectory interface {
	Rate(ctx context.Context, clientID string) (*ClientRate, error)
}

// ConversationStore persists conversation state so open conversations
// survive restarts. LoadOpen returns every stored conversation, including
// terminal ones whose outcome has not been applied yet.
type ConversationStore interface {
	Save(ctx context.Context, st *ConversationState) error
	Delete(ctx context.Context, externalEventID string) error
	LoadOpen(ctx context.Context) ([]*ConversationState, error)
}

// Messenger sends operator-facing prompts, addressed by the candidate's
// external event id. Delivery may be retried by the transport; the workflow
// tolerates duplicate replies.
type Messenger interface {
	SendPrompt(ctx context.Context, c Candidate) error
	SendPriceRequest(ctx context.Context, c Candidate) error
	SendReminder(ctx context.Context, c Candidate) error
}

// CandidateSource yields the current batch of billable candidates, already
// normalized and filtered.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}
