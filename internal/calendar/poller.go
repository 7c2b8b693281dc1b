package calendar

import (
	"context"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

// EventLister is the raw transport behind a Poller.
type EventLister interface {
	Events(ctx context.Context) ([]RawEvent, error)
}

// Poller combines a raw event source with the normalizer, yielding ready
// candidates for the engine.
type Poller struct {
	source EventLister
	norm   *Normalizer
}

func NewPoller(source EventLister, norm *Normalizer) *Poller {
	return &Poller{source: source, norm: norm}
}

func (p *Poller) Candidates(ctx context.Context) ([]reconcile.Candidate, error) {
	events, err := p.source.Events(ctx)
	if err != nil {
		return nil, err
	}
	var out []reconcile.Candidate
	for _, ev := range events {
		if c, ok := p.norm.Normalize(ev); ok {
			out = append(out, c)
		}
	}
	return out, nil
}
