package reconcile

import (
	"context"
	"fmt"
)

// Pricing resolves the amount to bill for a candidate. An operator override
// always wins; otherwise the client's flat per-session rate applies, else the
// hourly rate prorated by duration and rounded half-up to the minor unit.
type Pricing struct {
	rates RateDirectory
}

func NewPricing(rates RateDirectory) *Pricing {
	return &Pricing{rates: rates}
}

// Resolve returns the billed amount in minor units. It returns
// ErrUnknownClientRate when no override is supplied and the directory has no
// usable rate; the workflow must then collect a manual price instead of
// defaulting to zero.
func (p *Pricing) Resolve(ctx context.Context, c Candidate, override *int64) (int64, error) {
	if override != nil {
		if *override < 0 {
			return 0, fmt.Errorf("negative price override %d for event %s", *override, c.ExternalEventID)
		}
		return *override, nil
	}

	rate, err := p.rates.Rate(ctx, c.ClientID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up rate for client %s: %w", c.ClientID, err)
	}
	if rate == nil {
		return 0, ErrUnknownClientRate
	}

	if rate.FlatPerSession > 0 {
		return rate.FlatPerSession, nil
	}
	if rate.PerHour > 0 {
		return prorateHourly(rate.PerHour, c.DurationMinutes), nil
	}
	return 0, ErrUnknownClientRate
}

// prorateHourly computes minutes/60 of the hourly rate, rounded half-up.
// Amounts are already in minor units, so half-up rounding of the exact
// quotient is +30 before the division.
func prorateHourly(perHour int64, minutes int) int64 {
	return (int64(minutes)*perHour + 30) / 60
}
