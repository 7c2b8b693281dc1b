package calendar

import "time"

// RawEvent is a calendar event as delivered by the source, before any
// eligibility filtering. The ID is assumed globally stable and unique.
type RawEvent struct {
	ID    string
	Title string
	Tags  []string
	Start time.Time
	End   time.Time
}
