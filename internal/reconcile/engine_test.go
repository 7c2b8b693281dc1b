package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine    *Engine
	source    *fakeSource
	ledger    *fakeLedger
	dedup     *fakeDedup
	store     *fakeConvStore
	messenger *fakeMessenger
	now       *time.Time
}

func newEngineFixture(t *testing.T, rates map[string]ClientRate) *engineFixture {
	t.Helper()
	source := &fakeSource{}
	ledger := newFakeLedger()
	dedup := newFakeDedup(ledger)
	store := newFakeConvStore()
	messenger := &fakeMessenger{}

	w := NewWorkflow(store, NewPricing(&fakeRates{rates: rates}), messenger, WorkflowConfig{
		Timeout:     12 * time.Hour,
		RemindAfter: 2 * time.Hour,
	}, zerolog.Nop())
	now := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	r := NewReconciler(ledger, ReconcilerConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, zerolog.Nop())

	e := NewEngine(source, dedup, w, r, time.Minute, zerolog.Nop())
	e.now = func() time.Time { return now }

	return &engineFixture{
		engine:    e,
		source:    source,
		ledger:    ledger,
		dedup:     dedup,
		store:     store,
		messenger: messenger,
		now:       &now,
	}
}

func TestEngineFullConfirmFlow(t *testing.T) {
	f := newEngineFixture(t, giovanniRates())
	ctx := context.Background()
	f.source.set(testCandidate("ev1", "Giovanni", f.now.Add(-2*time.Hour), 60))

	f.engine.RunCycle(ctx)
	assert.Equal(t, 1, f.messenger.promptCount())

	f.engine.HandleReply(ctx, "ev1", "si", *f.now)
	f.engine.RunCycle(ctx)

	entries := f.ledger.entriesFor("Giovanni")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3000), entries[0].BilledAmount)

	// Settled: the conversation is gone and the event marked processed.
	assert.Empty(t, f.store.states)
	processed, err := f.dedup.HasProcessed(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestEngineDuplicateDeliveryAcrossCycles(t *testing.T) {
	f := newEngineFixture(t, giovanniRates())
	ctx := context.Background()
	c := testCandidate("ev1", "Giovanni", f.now.Add(-2*time.Hour), 60)
	f.source.set(c)

	f.engine.RunCycle(ctx)
	f.engine.HandleReply(ctx, "ev1", "si", *f.now)
	f.engine.RunCycle(ctx)
	require.Len(t, f.ledger.entriesFor("Giovanni"), 1)

	// Calendar keeps returning the same event. No new conversation, no
	// second ledger row.
	f.engine.RunCycle(ctx)
	f.engine.RunCycle(ctx)
	assert.Equal(t, 1, f.messenger.promptCount())
	assert.Len(t, f.ledger.entriesFor("Giovanni"), 1)
}

func TestEngineSkippedEventsNeverReachLedger(t *testing.T) {
	f := newEngineFixture(t, giovanniRates())
	ctx := context.Background()
	f.source.set(testCandidate("ev1", "Giovanni", f.now.Add(-2*time.Hour), 60))

	f.engine.RunCycle(ctx)
	f.engine.HandleReply(ctx, "ev1", "no", *f.now)
	f.engine.RunCycle(ctx)

	assert.Empty(t, f.ledger.entriesFor("Giovanni"))

	// The decline is remembered: the same event is not re-prompted.
	f.engine.RunCycle(ctx)
	assert.Equal(t, 1, f.messenger.promptCount())
	processed, err := f.dedup.HasProcessed(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestEngineApplyFailureKeepsOutcomeForNextCycle(t *testing.T) {
	f := newEngineFixture(t, giovanniRates())
	ctx := context.Background()
	f.source.set(testCandidate("ev1", "Giovanni", f.now.Add(-2*time.Hour), 60))

	f.engine.RunCycle(ctx)
	f.engine.HandleReply(ctx, "ev1", "si", *f.now)

	// Every store call fails this cycle. The outcome must survive.
	f.ledger.fail("has-entry", 3)
	f.ledger.fail("read-balance", 3)
	f.engine.RunCycle(ctx)
	assert.Empty(t, f.ledger.entriesFor("Giovanni"))
	assert.NotEmpty(t, f.store.states, "conversation must be kept until the ledger write lands")

	// Store recovers, next cycle settles.
	f.engine.RunCycle(ctx)
	assert.Len(t, f.ledger.entriesFor("Giovanni"), 1)
	assert.Empty(t, f.store.states)
}

func TestEnginePollFailureStillProcessesTimeouts(t *testing.T) {
	f := newEngineFixture(t, giovanniRates())
	ctx := context.Background()
	f.source.set(testCandidate("ev1", "Giovanni", f.now.Add(-2*time.Hour), 60))

	f.engine.RunCycle(ctx)
	assert.Equal(t, 1, f.messenger.promptCount())

	// Calendar goes down while the conversation ages past its deadline.
	f.source.err = errStoreDown
	*f.now = f.now.Add(13 * time.Hour)
	f.engine.RunCycle(ctx)

	assert.Empty(t, f.store.states, "expired conversation must be settled despite the poll failure")
	processed, err := f.dedup.HasProcessed(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, f.ledger.entriesFor("Giovanni"))
}

func TestEngineDedupFailureDefersCandidate(t *testing.T) {
	f := newEngineFixture(t, giovanniRates())
	ctx := context.Background()
	f.source.set(testCandidate("ev1", "Giovanni", f.now.Add(-2*time.Hour), 60))

	// Dedup lookup goes through ledger.HasEntry.
	f.ledger.fail("has-entry", 1)
	f.engine.RunCycle(ctx)
	assert.Equal(t, 0, f.messenger.promptCount())

	f.engine.RunCycle(ctx)
	assert.Equal(t, 1, f.messenger.promptCount())
}
