package calendar

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// Normalizer turns raw calendar events into billing candidates. Only events
// carrying the tutoring marker are eligible; events still in the future and
// events that ended more than Grace ago are dropped. Malformed events are
// logged and skipped, never fatal.
type Normalizer struct {
	marker string
	grace  time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewNormalizer(marker string, grace time.Duration, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		marker: marker,
		grace:  grace,
		now:    time.Now,
		log:    logger,
	}
}

// Normalize returns the candidate for ev, or false when the event is not
// billable (wrong marker, wrong time window, or malformed).
func (n *Normalizer) Normalize(ev RawEvent) (reconcile.Candidate, bool) {
	if !n.hasMarker(ev) {
		return reconcile.Candidate{}, false
	}
	if ev.ID == "" || ev.Start.IsZero() || ev.End.IsZero() || !ev.End.After(ev.Start) {
		n.log.Warn().Str("event_id", ev.ID).Str("title", ev.Title).Msg("malformed calendar event skipped")
		return reconcile.Candidate{}, false
	}

	now := n.now()
	if ev.End.After(now) {
		// Only completed sessions are billable.
		return reconcile.Candidate{}, false
	}
	if now.Sub(ev.End) > n.grace {
		// Too old: do not resurrect stale events.
		return reconcile.Candidate{}, false
	}

	clientID := n.clientFromTitle(ev.Title)
	if clientID == "" {
		n.log.Warn().Str("event_id", ev.ID).Str("title", ev.Title).Msg("calendar event without client name skipped")
		return reconcile.Candidate{}, false
	}

	return reconcile.Candidate{
		ExternalEventID: ev.ID,
		ClientID:        clientID,
		ScheduledStart:  ev.Start,
		DurationMinutes: int(ev.End.Sub(ev.Start).Minutes()),
		RawTags:         ev.Tags,
	}, true
}

func (n *Normalizer) hasMarker(ev RawEvent) bool {
	for _, tag := range ev.Tags {
		if strings.EqualFold(tag, n.marker) {
			return true
		}
	}
	return containsFold(ev.Title, n.marker)
}

// clientFromTitle extracts the client identity from the event title, which
// is the marker plus the student name ("Ripetizioni Giovanni").
func (n *Normalizer) clientFromTitle(title string) string {
	s := strings.TrimSpace(title)
	if i := indexFold(s, n.marker); i >= 0 {
		s = s[:i] + s[i+len(n.marker):]
	}
	s = strings.Trim(s, " -–:,")
	return strings.TrimSpace(s)
}

func containsFold(s, sub string) bool {
	return indexFold(s, sub) >= 0
}

func indexFold(s, sub string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(sub))
}
