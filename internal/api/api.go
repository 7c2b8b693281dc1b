package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/lorenzodm/tutorflow/internal/config"
	"github.com/lorenzodm/tutorflow/internal/db"
)

// API is the operator surface: open conversations, client balances,
// per-client ledger rows, rate management and a balance verification endpoint
// for manual review of suspected corruption.
type API struct {
	router    *mux.Router
	db        *db.DB
	config    *config.Config
	jwtSecret []byte
	log       zerolog.Logger
}

func New(cfg *config.Config, database *db.DB, logger zerolog.Logger) *API {
	api := &API{
		router:    mux.NewRouter(),
		db:        database,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		log:       logger,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/conversations", a.handleListConversations).Methods("GET")
	protected.HandleFunc("/clients", a.handleListClients).Methods("GET")
	protected.HandleFunc("/clients/{client_id}/ledger", a.handleClientLedger).Methods("GET")
	protected.HandleFunc("/clients/{client_id}/verify", a.handleVerifyBalance).Methods("GET")
	protected.HandleFunc("/rates", a.handleListRates).Methods("GET")
	protected.HandleFunc("/rates/{client_id}", a.handleUpsertRate).Methods("PUT")
}

func (a *API) Start() error {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}

	handler := cors.New(corsOptions).Handler(a.router)

	a.log.Info().Str("bind", a.config.WebBind).Msg("API server listening")
	return http.ListenAndServe(a.config.WebBind, handler)
}
