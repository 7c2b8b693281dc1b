package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPricingResolve(t *testing.T) {
	rates := &fakeRates{rates: map[string]ClientRate{
		"Giovanni": {ClientID: "Giovanni", FlatPerSession: 3000, Currency: "EUR"},
		"Marta":    {ClientID: "Marta", PerHour: 3000, Currency: "EUR"},
		"Luca":     {ClientID: "Luca", FlatPerSession: 2500, PerHour: 4000, Currency: "EUR"},
	}}
	pricing := NewPricing(rates)
	override := int64(4550)

	tests := []struct {
		name     string
		clientID string
		minutes  int
		override *int64
		want     int64
		wantErr  error
	}{
		{
			name:     "flat per-session rate",
			clientID: "Giovanni",
			minutes:  90,
			want:     3000,
		},
		{
			name:     "hourly rate prorated",
			clientID: "Marta",
			minutes:  90,
			want:     4500,
		},
		{
			name:     "hourly rate short session",
			clientID: "Marta",
			minutes:  50,
			want:     2500,
		},
		{
			name:     "flat rate wins over hourly",
			clientID: "Luca",
			minutes:  60,
			want:     2500,
		},
		{
			name:     "override wins over any rate",
			clientID: "Giovanni",
			minutes:  60,
			override: &override,
			want:     4550,
		},
		{
			name:     "no rate on file",
			clientID: "Sconosciuto",
			minutes:  60,
			wantErr:  ErrUnknownClientRate,
		},
		{
			name:     "override rescues unknown client",
			clientID: "Sconosciuto",
			minutes:  60,
			override: &override,
			want:     4550,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCandidate("ev1", tt.clientID, time.Now(), tt.minutes)
			got, err := pricing.Resolve(context.Background(), c, tt.override)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProrateHourlyRoundsHalfUp(t *testing.T) {
	tests := []struct {
		perHour int64
		minutes int
		want    int64
	}{
		{perHour: 3000, minutes: 60, want: 3000},
		{perHour: 3000, minutes: 90, want: 4500},
		{perHour: 3000, minutes: 50, want: 2500},
		{perHour: 90, minutes: 1, want: 2},    // 1.5 rounds up
		{perHour: 1000, minutes: 35, want: 583}, // 583.33 rounds down
		{perHour: 1000, minutes: 45, want: 750},
	}
	for _, tt := range tests {
		if got := prorateHourly(tt.perHour, tt.minutes); got != tt.want {
			t.Errorf("prorateHourly(%d, %d) = %d, want %d", tt.perHour, tt.minutes, got, tt.want)
		}
	}
}
