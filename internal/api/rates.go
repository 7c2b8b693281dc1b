package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

type rateResponse struct {
	ClientID       string `json:"client_id"`
	FlatPerSession int64  `json:"flat_per_session"`
	PerHour        int64  `json:"per_hour"`
	Currency       string `json:"currency"`
}

func (a *API) handleListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := a.db.ListRates(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("failed to list rates")
		http.Error(w, "failed to list rates", http.StatusInternalServerError)
		return
	}

	out := make([]rateResponse, 0, len(rates))
	for _, rate := range rates {
		out = append(out, rateResponse{
			ClientID:       rate.ClientID,
			FlatPerSession: rate.FlatPerSession,
			PerHour:        rate.PerHour,
			Currency:       rate.Currency,
		})
	}
	writeJSON(w, out)
}

type upsertRateRequest struct {
	FlatPerSession int64  `json:"flat_per_session"`
	PerHour        int64  `json:"per_hour"`
	Currency       string `json:"currency"`
}

// handleUpsertRate creates or replaces a client's rate. Amounts are in minor
// units; at least one of the two rates must be positive.
func (a *API) handleUpsertRate(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	var req upsertRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FlatPerSession < 0 || req.PerHour < 0 {
		http.Error(w, "rates must not be negative", http.StatusBadRequest)
		return
	}
	if req.FlatPerSession == 0 && req.PerHour == 0 {
		http.Error(w, "one of flat_per_session or per_hour is required", http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}

	rate := reconcile.ClientRate{
		ClientID:       clientID,
		FlatPerSession: req.FlatPerSession,
		PerHour:        req.PerHour,
		Currency:       req.Currency,
	}
	if err := a.db.UpsertRate(r.Context(), rate); err != nil {
		a.log.Error().Err(err).Str("client_id", clientID).Msg("failed to upsert rate")
		http.Error(w, "failed to save rate", http.StatusInternalServerError)
		return
	}

	writeJSON(w, rateResponse{
		ClientID:       rate.ClientID,
		FlatPerSession: rate.FlatPerSession,
		PerHour:        rate.PerHour,
		Currency:       rate.Currency,
	})
}
