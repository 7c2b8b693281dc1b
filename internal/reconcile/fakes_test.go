package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errStoreDown = errors.New("store unreachable")

// fakeLedger is an in-memory LedgerStore with per-operation failure
// injection: failures["append-entry"] = 2 makes the next two appends fail.
type fakeLedger struct {
	mu       sync.Mutex
	entries  []LedgerEntry
	balances map[string]ClientBalance
	failures map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]ClientBalance),
		failures: make(map[string]int),
	}
}

func (f *fakeLedger) fail(op string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = times
}

func (f *fakeLedger) maybeFail(op string) error {
	if f.failures[op] > 0 {
		f.failures[op]--
		return errStoreDown
	}
	return nil
}

func (f *fakeLedger) ReadBalance(_ context.Context, clientID string) (ClientBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("read-balance"); err != nil {
		return ClientBalance{}, err
	}
	if bal, ok := f.balances[clientID]; ok {
		return bal, nil
	}
	return ClientBalance{ClientID: clientID}, nil
}

func (f *fakeLedger) WriteBalance(_ context.Context, bal ClientBalance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("write-balance"); err != nil {
		return err
	}
	f.balances[bal.ClientID] = bal
	return nil
}

func (f *fakeLedger) AppendEntry(_ context.Context, entry LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("append-entry"); err != nil {
		return err
	}
	for _, e := range f.entries {
		if e.ExternalEventID == entry.ExternalEventID {
			return nil
		}
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) Entries(_ context.Context, clientID string) ([]LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("list-entries"); err != nil {
		return nil, err
	}
	var out []LedgerEntry
	for _, e := range f.entries {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) HasEntry(_ context.Context, externalEventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("has-entry"); err != nil {
		return false, err
	}
	for _, e := range f.entries {
		if e.ExternalEventID == externalEventID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) entriesFor(clientID string) []LedgerEntry {
	out, _ := f.Entries(context.Background(), clientID)
	return out
}

// fakeDedup combines ledger-row presence with a skip log, mirroring the
// production store.
type fakeDedup struct {
	mu     sync.Mutex
	ledger *fakeLedger
	skips  map[string]OutcomeKind
}

func newFakeDedup(ledger *fakeLedger) *fakeDedup {
	return &fakeDedup{ledger: ledger, skips: make(map[string]OutcomeKind)}
}

func (f *fakeDedup) HasProcessed(ctx context.Context, externalEventID string) (bool, error) {
	f.mu.Lock()
	_, skipped := f.skips[externalEventID]
	f.mu.Unlock()
	if skipped {
		return true, nil
	}
	return f.ledger.HasEntry(ctx, externalEventID)
}

func (f *fakeDedup) MarkProcessed(_ context.Context, externalEventID string, kind OutcomeKind) error {
	if kind == OutcomeBilled {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips[externalEventID] = kind
	return nil
}

// fakeRates is a static rate directory.
type fakeRates struct {
	rates map[string]ClientRate
}

func (f *fakeRates) Rate(_ context.Context, clientID string) (*ClientRate, error) {
	if rate, ok := f.rates[clientID]; ok {
		return &rate, nil
	}
	return nil, nil
}

// fakeConvStore is an in-memory ConversationStore.
type fakeConvStore struct {
	mu     sync.Mutex
	states map[string]ConversationState
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{states: make(map[string]ConversationState)}
}

func (f *fakeConvStore) Save(_ context.Context, st *ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.ExternalEventID] = *st
	return nil
}

func (f *fakeConvStore) Delete(_ context.Context, externalEventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, externalEventID)
	return nil
}

func (f *fakeConvStore) LoadOpen(_ context.Context) ([]*ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ConversationState
	for _, st := range f.states {
		stCopy := st
		out = append(out, &stCopy)
	}
	return out, nil
}

// fakeMessenger records outbound prompts.
type fakeMessenger struct {
	mu            sync.Mutex
	prompts       []string
	priceRequests []string
	reminders     []string
	sendErr       error
}

func (f *fakeMessenger) SendPrompt(_ context.Context, c Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.prompts = append(f.prompts, c.ExternalEventID)
	return nil
}

func (f *fakeMessenger) SendPriceRequest(_ context.Context, c Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.priceRequests = append(f.priceRequests, c.ExternalEventID)
	return nil
}

func (f *fakeMessenger) SendReminder(_ context.Context, c Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.reminders = append(f.reminders, c.ExternalEventID)
	return nil
}

func (f *fakeMessenger) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeMessenger) reminderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reminders)
}

func (f *fakeMessenger) priceRequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.priceRequests)
}

// fakeSource yields a fixed batch of candidates per cycle.
type fakeSource struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
}

func (f *fakeSource) Candidates(_ context.Context) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Candidate(nil), f.candidates...), nil
}

func (f *fakeSource) set(cs ...Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = cs
}

func testCandidate(eventID, clientID string, start time.Time, minutes int) Candidate {
	return Candidate{
		ExternalEventID: eventID,
		ClientID:        clientID,
		ScheduledStart:  start,
		DurationMinutes: minutes,
	}
}
