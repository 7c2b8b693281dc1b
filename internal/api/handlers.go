package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type conversationResponse struct {
	ExternalEventID string    `json:"external_event_id"`
	ClientID        string    `json:"client_id"`
	Status          string    `json:"status"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	ReminderSent    bool      `json:"reminder_sent"`
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	states, err := a.db.LoadOpen(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("failed to load conversations")
		http.Error(w, "failed to load conversations", http.StatusInternalServerError)
		return
	}

	out := make([]conversationResponse, 0, len(states))
	for _, st := range states {
		out = append(out, conversationResponse{
			ExternalEventID: st.ExternalEventID,
			ClientID:        st.ClientID,
			Status:          string(st.Status),
			ScheduledStart:  st.ScheduledStart,
			DurationMinutes: st.DurationMinutes,
			CreatedAt:       st.CreatedAt,
			ReminderSent:    st.ReminderSent,
		})
	}
	writeJSON(w, out)
}

type balanceResponse struct {
	ClientID    string `json:"client_id"`
	TotalBilled int64  `json:"total_billed"`
	TotalPaid   int64  `json:"total_paid"`
	Outstanding int64  `json:"outstanding"`
}

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	balances, err := a.db.ListBalances(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("failed to list balances")
		http.Error(w, "failed to list balances", http.StatusInternalServerError)
		return
	}

	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			ClientID:    b.ClientID,
			TotalBilled: b.TotalBilled,
			TotalPaid:   b.TotalPaid,
			Outstanding: b.Outstanding(),
		})
	}
	writeJSON(w, out)
}

type ledgerEntryResponse struct {
	ID                  string    `json:"id"`
	ExternalEventID     string    `json:"external_event_id"`
	Date                time.Time `json:"date"`
	BilledAmount        int64     `json:"billed_amount"`
	AmountPaid          int64     `json:"amount_paid"`
	RunningBalanceAfter int64     `json:"running_balance_after"`
}

func (a *API) handleClientLedger(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	entries, err := a.db.Entries(r.Context(), clientID)
	if err != nil {
		a.log.Error().Err(err).Str("client_id", clientID).Msg("failed to load ledger entries")
		http.Error(w, "failed to load ledger entries", http.StatusInternalServerError)
		return
	}

	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:                  e.ID,
			ExternalEventID:     e.ExternalEventID,
			Date:                e.Date,
			BilledAmount:        e.BilledAmount,
			AmountPaid:          e.AmountPaid,
			RunningBalanceAfter: e.RunningBalanceAfter,
		})
	}
	writeJSON(w, out)
}

type verifyResponse struct {
	ClientID       string `json:"client_id"`
	StoredBilled   int64  `json:"stored_billed"`
	StoredPaid     int64  `json:"stored_paid"`
	ComputedBilled int64  `json:"computed_billed"`
	ComputedPaid   int64  `json:"computed_paid"`
	Consistent     bool   `json:"consistent"`
}

// handleVerifyBalance recomputes a client's totals from its ledger rows and
// compares them to the cached balance. This is the manual-review hook for
// suspected corruption: nothing is auto-corrected.
func (a *API) handleVerifyBalance(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	bal, err := a.db.ReadBalance(r.Context(), clientID)
	if err != nil {
		a.log.Error().Err(err).Str("client_id", clientID).Msg("failed to read balance")
		http.Error(w, "failed to read balance", http.StatusInternalServerError)
		return
	}
	entries, err := a.db.Entries(r.Context(), clientID)
	if err != nil {
		a.log.Error().Err(err).Str("client_id", clientID).Msg("failed to load ledger entries")
		http.Error(w, "failed to load ledger entries", http.StatusInternalServerError)
		return
	}

	var sumBilled, sumPaid int64
	for _, e := range entries {
		sumBilled += e.BilledAmount
		sumPaid += e.AmountPaid
	}

	writeJSON(w, verifyResponse{
		ClientID:       clientID,
		StoredBilled:   bal.TotalBilled,
		StoredPaid:     bal.TotalPaid,
		ComputedBilled: sumBilled,
		ComputedPaid:   sumPaid,
		Consistent:     sumBilled == bal.TotalBilled && sumPaid == bal.TotalPaid,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
