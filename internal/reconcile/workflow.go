package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Workflow drives one confirmation conversation per external event id.
// Conversations are message-driven: nothing blocks waiting for the operator,
// so arbitrarily many can be open at once. State is persisted on every
// transition and reloaded on restart via Restore.
type Workflow struct {
	store       ConversationStore
	pricing     *Pricing
	messenger   Messenger
	timeout     time.Duration
	remindAfter time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu    sync.Mutex
	convs map[string]*conversation
}

// conversation serializes all transitions for a single event id.
type conversation struct {
	mu sync.Mutex
	st ConversationState
}

type WorkflowConfig struct {
	// Timeout is measured from the conversation's creation; reminders never
	// extend it.
	Timeout time.Duration
	// RemindAfter is when the single reminder goes out, also measured from
	// creation.
	RemindAfter time.Duration
}

func NewWorkflow(store ConversationStore, pricing *Pricing, messenger Messenger, cfg WorkflowConfig, logger zerolog.Logger) *Workflow {
	return &Workflow{
		store:       store,
		pricing:     pricing,
		messenger:   messenger,
		timeout:     cfg.Timeout,
		remindAfter: cfg.RemindAfter,
		now:         time.Now,
		log:         logger,
		convs:       make(map[string]*conversation),
	}
}

// Restore reloads persisted conversations, including terminal ones whose
// outcome was not applied before the last shutdown.
func (w *Workflow) Restore(ctx context.Context) error {
	states, err := w.store.LoadOpen(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range states {
		w.convs[st.ExternalEventID] = &conversation{st: *st}
	}
	w.log.Info().Int("conversations", len(states)).Msg("restored conversation state")
	return nil
}

// Begin opens a conversation for the candidate and sends the first prompt.
// A no-op if a conversation already exists for the event id.
func (w *Workflow) Begin(ctx context.Context, c Candidate) error {
	w.mu.Lock()
	if _, ok := w.convs[c.ExternalEventID]; ok {
		w.mu.Unlock()
		return nil
	}
	conv := &conversation{st: ConversationState{
		ExternalEventID: c.ExternalEventID,
		ClientID:        c.ClientID,
		ScheduledStart:  c.ScheduledStart,
		DurationMinutes: c.DurationMinutes,
		Status:          StatusPending,
		CreatedAt:       w.now(),
	}}
	w.convs[c.ExternalEventID] = conv
	w.mu.Unlock()

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if err := w.store.Save(ctx, &conv.st); err != nil {
		return err
	}
	if err := w.messenger.SendPrompt(ctx, c); err != nil {
		// Keep the conversation: the reminder path retries the prompt.
		w.log.Warn().Err(err).Str("event_id", c.ExternalEventID).Msg("failed to send confirmation prompt")
		return nil
	}
	conv.st.LastPromptAt = w.now()
	w.persist(ctx, conv)
	return nil
}

// HandleReply feeds one operator reply into the conversation's state machine.
// Replies for unknown or already-terminal conversations are ignored, which is
// what makes duplicate and out-of-order chat deliveries safe.
func (w *Workflow) HandleReply(ctx context.Context, externalEventID, text string, receivedAt time.Time) {
	w.mu.Lock()
	conv, ok := w.convs[externalEventID]
	w.mu.Unlock()
	if !ok {
		w.log.Debug().Str("event_id", externalEventID).Msg("reply for unknown conversation ignored")
		return
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.st.Status.Terminal() {
		w.log.Debug().Str("event_id", externalEventID).Str("status", string(conv.st.Status)).
			Msg("reply after terminal state ignored")
		return
	}

	r := parseReply(text)
	switch r.kind {
	case replyConfirm:
		confirmed := true
		conv.st.AttendanceConfirmed = &confirmed
		w.tryConfirm(ctx, conv, conv.st.PriceOverride)

	case replyDecline:
		declined := false
		conv.st.AttendanceConfirmed = &declined
		w.finish(ctx, conv, OutcomeSkippedNotHeld, 0)

	case replyOverride:
		amount := r.amount
		conv.st.PriceOverride = &amount
		w.tryConfirm(ctx, conv, conv.st.PriceOverride)

	case replyPayment:
		if r.amount < 0 {
			conv.st.PaymentFull = true
			conv.st.PaymentReceived = nil
		} else {
			amount := r.amount
			conv.st.PaymentReceived = &amount
			conv.st.PaymentFull = false
		}
		w.persist(ctx, conv)

	default:
		w.log.Warn().Str("event_id", externalEventID).Str("text", text).Msg("unrecognized operator reply")
	}
}

// tryConfirm resolves the price and either confirms the conversation or
// routes it to awaiting_price when no rate is on file.
func (w *Workflow) tryConfirm(ctx context.Context, conv *conversation, override *int64) {
	billed, err := w.pricing.Resolve(ctx, conv.candidate(), override)
	if errors.Is(err, ErrUnknownClientRate) {
		conv.st.Status = StatusAwaitingPrice
		w.persist(ctx, conv)
		if serr := w.messenger.SendPriceRequest(ctx, conv.candidate()); serr != nil {
			w.log.Warn().Err(serr).Str("event_id", conv.st.ExternalEventID).Msg("failed to send price request")
			return
		}
		conv.st.LastPromptAt = w.now()
		w.persist(ctx, conv)
		return
	}
	if err != nil {
		w.log.Error().Err(err).Str("event_id", conv.st.ExternalEventID).Msg("price resolution failed")
		return
	}
	w.finish(ctx, conv, OutcomeBilled, billed)
}

// finish moves the conversation to its terminal state and builds the outcome
// exactly once.
func (w *Workflow) finish(ctx context.Context, conv *conversation, kind OutcomeKind, billed int64) {
	if conv.st.Outcome != nil {
		return
	}
	switch kind {
	case OutcomeBilled:
		conv.st.Status = StatusConfirmed
	case OutcomeSkippedNotHeld:
		conv.st.Status = StatusDeclined
	case OutcomeSkippedExpired:
		conv.st.Status = StatusExpired
	}

	paid := int64(0)
	if kind == OutcomeBilled {
		if conv.st.PaymentFull {
			paid = billed
		} else if conv.st.PaymentReceived != nil {
			paid = *conv.st.PaymentReceived
		}
	}
	conv.st.Outcome = &Outcome{
		ExternalEventID: conv.st.ExternalEventID,
		ClientID:        conv.st.ClientID,
		BilledAmount:    billed,
		AmountPaid:      paid,
		OccurredAt:      conv.st.ScheduledStart,
		Kind:            kind,
	}
	w.persist(ctx, conv)
	w.log.Info().Str("event_id", conv.st.ExternalEventID).Str("kind", string(kind)).
		Int64("billed", billed).Int64("paid", paid).Msg("conversation reached terminal state")
}

// Tick applies timeouts and sends due reminders. Expiry is exact: a
// conversation created at t0 expires at t0+timeout no matter how many
// reminders went out in between.
func (w *Workflow) Tick(ctx context.Context, now time.Time) {
	for _, conv := range w.snapshot() {
		conv.mu.Lock()
		if conv.st.Status.Terminal() {
			conv.mu.Unlock()
			continue
		}
		switch {
		case now.Sub(conv.st.CreatedAt) >= w.timeout:
			w.finish(ctx, conv, OutcomeSkippedExpired, 0)
		case !conv.st.ReminderSent && now.Sub(conv.st.CreatedAt) >= w.remindAfter:
			if err := w.messenger.SendReminder(ctx, conv.candidate()); err != nil {
				w.log.Warn().Err(err).Str("event_id", conv.st.ExternalEventID).Msg("failed to send reminder")
			} else {
				conv.st.ReminderSent = true
				conv.st.LastPromptAt = now
				w.persist(ctx, conv)
			}
		}
		conv.mu.Unlock()
	}
}

// PendingOutcomes returns the outcomes of terminal conversations that have
// not been discarded yet. The engine applies them and then calls Discard.
func (w *Workflow) PendingOutcomes() []Outcome {
	var out []Outcome
	for _, conv := range w.snapshot() {
		conv.mu.Lock()
		if conv.st.Outcome != nil {
			out = append(out, *conv.st.Outcome)
		}
		conv.mu.Unlock()
	}
	return out
}

// Discard drops a conversation once its outcome has been ledgered and
// dedup-marked. Later replies for the event id become no-ops.
func (w *Workflow) Discard(ctx context.Context, externalEventID string) {
	if err := w.store.Delete(ctx, externalEventID); err != nil {
		w.log.Error().Err(err).Str("event_id", externalEventID).Msg("failed to delete conversation state")
		return
	}
	w.mu.Lock()
	delete(w.convs, externalEventID)
	w.mu.Unlock()
}

func (w *Workflow) snapshot() []*conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*conversation, 0, len(w.convs))
	for _, conv := range w.convs {
		out = append(out, conv)
	}
	return out
}

func (w *Workflow) persist(ctx context.Context, conv *conversation) {
	if err := w.store.Save(ctx, &conv.st); err != nil {
		w.log.Error().Err(err).Str("event_id", conv.st.ExternalEventID).Msg("failed to persist conversation state")
	}
}

func (c *conversation) candidate() Candidate {
	return Candidate{
		ExternalEventID: c.st.ExternalEventID,
		ClientID:        c.st.ClientID,
		ScheduledStart:  c.st.ScheduledStart,
		DurationMinutes: c.st.DurationMinutes,
	}
}
