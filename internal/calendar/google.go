package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// GoogleSource fetches events from the Google Calendar REST API using a
// refresh-token credential (readonly scope). Each poll covers a bounded
// window ending now; the normalizer applies the finer eligibility filters.
type GoogleSource struct {
	client     *http.Client
	calendarID string
	marker     string
	window     time.Duration
	now        func() time.Time
}

type GoogleCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

const googleEventsURL = "https://www.googleapis.com/calendar/v3/calendars/%s/events"

func NewGoogleSource(ctx context.Context, creds GoogleCredentials, calendarID, marker string, window time.Duration) *GoogleSource {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
	return &GoogleSource{
		client:     cfg.Client(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}),
		calendarID: calendarID,
		marker:     marker,
		window:     window,
		now:        time.Now,
	}
}

type googleEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

type googleEvent struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Summary string          `json:"summary"`
	Start   googleEventTime `json:"start"`
	End     googleEventTime `json:"end"`
}

type googleEventList struct {
	Items []googleEvent `json:"items"`
}

// Events lists calendar events in the polling window that match the marker
// query. Cancelled events are dropped here: a cancelled calendar entry must
// never become a billing candidate.
func (g *GoogleSource) Events(ctx context.Context) ([]RawEvent, error) {
	now := g.now()
	q := url.Values{}
	q.Set("timeMin", now.Add(-g.window).Format(time.RFC3339))
	q.Set("timeMax", now.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("q", g.marker)

	endpoint := fmt.Sprintf(googleEventsURL, url.PathEscape(g.calendarID)) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar API returned status %d", resp.StatusCode)
	}

	var list googleEventList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode calendar response: %w", err)
	}

	events := make([]RawEvent, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Status == "cancelled" {
			continue
		}
		start, ok := parseEventTime(item.Start)
		if !ok {
			continue
		}
		end, ok := parseEventTime(item.End)
		if !ok {
			continue
		}
		events = append(events, RawEvent{
			ID:    item.ID,
			Title: item.Summary,
			Tags:  []string{g.marker},
			Start: start,
			End:   end,
		})
	}
	return events, nil
}

func parseEventTime(t googleEventTime) (time.Time, bool) {
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, err == nil
	}
	if t.Date != "" {
		parsed, err := time.Parse("2006-01-02", t.Date)
		return parsed, err == nil
	}
	return time.Time{}, false
}
