package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Engine drives the reconciliation pipeline: poll candidates, filter through
// the dedup store, open or advance confirmation conversations, and settle
// terminal outcomes into the ledger. Per-candidate failures never abort a
// cycle.
type Engine struct {
	source     CandidateSource
	dedup      DedupStore
	workflow   *Workflow
	reconciler *Reconciler
	interval   time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewEngine(source CandidateSource, dedup DedupStore, workflow *Workflow, reconciler *Reconciler, interval time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		source:     source,
		dedup:      dedup,
		workflow:   workflow,
		reconciler: reconciler,
		interval:   interval,
		now:        time.Now,
		log:        logger,
	}
}

// Run executes cycles until the context is cancelled. The first cycle runs
// immediately.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.RunCycle(ctx)
	for {
		select {
		case <-ticker.C:
			e.RunCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunCycle performs one pass. Even when polling fails, timeouts and pending
// outcomes are still processed, so a broken calendar source cannot stall
// conversations that are already open.
func (e *Engine) RunCycle(ctx context.Context) {
	candidates, err := e.source.Candidates(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to poll candidates")
	}
	for _, c := range candidates {
		e.admit(ctx, c)
	}

	e.workflow.Tick(ctx, e.now())

	for _, o := range e.workflow.PendingOutcomes() {
		e.settle(ctx, o)
	}
}

// HandleReply routes an operator reply (conversation id = external event id)
// into the owning workflow.
func (e *Engine) HandleReply(ctx context.Context, conversationID, text string, receivedAt time.Time) {
	e.workflow.HandleReply(ctx, conversationID, text, receivedAt)
}

func (e *Engine) admit(ctx context.Context, c Candidate) {
	processed, err := e.dedup.HasProcessed(ctx, c.ExternalEventID)
	if err != nil {
		e.log.Warn().Err(err).Str("event_id", c.ExternalEventID).Msg("dedup lookup failed, deferring candidate")
		return
	}
	if processed {
		return
	}
	if err := e.workflow.Begin(ctx, c); err != nil {
		e.log.Error().Err(err).Str("event_id", c.ExternalEventID).Msg("failed to open conversation")
	}
}

// settle applies an outcome to the ledger, then marks it processed, then
// discards the conversation, in that order. A crash between any two steps
// leads to an idempotent retry on the next cycle rather than a dropped
// billing event.
func (e *Engine) settle(ctx context.Context, o Outcome) {
	if err := e.reconciler.Apply(ctx, o); err != nil {
		e.log.Error().Err(err).Str("event_id", o.ExternalEventID).Str("client_id", o.ClientID).
			Msg("ledger apply failed, outcome kept for next cycle")
		return
	}
	if err := e.dedup.MarkProcessed(ctx, o.ExternalEventID, o.Kind); err != nil {
		e.log.Error().Err(err).Str("event_id", o.ExternalEventID).
			Msg("failed to mark event processed, outcome kept for next cycle")
		return
	}
	e.workflow.Discard(ctx, o.ExternalEventID)
}
