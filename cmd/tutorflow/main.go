package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/lorenzodm/tutorflow/internal/api"
	"github.com/lorenzodm/tutorflow/internal/bot"
	"github.com/lorenzodm/tutorflow/internal/calendar"
	"github.com/lorenzodm/tutorflow/internal/config"
	"github.com/lorenzodm/tutorflow/internal/db"
	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Discord transport
	discordBot, err := bot.New(cfg.DiscordToken, cfg.DiscordChannelID, logger.With().Str("component", "bot").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create discord bot")
	}

	// Reconciliation core
	pricing := reconcile.NewPricing(database)
	workflow := reconcile.NewWorkflow(database, pricing, discordBot, reconcile.WorkflowConfig{
		Timeout:     cfg.ConfirmTimeout,
		RemindAfter: cfg.RemindAfter,
	}, logger.With().Str("component", "workflow").Logger())
	if err := workflow.Restore(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore conversation state")
	}

	reconciler := reconcile.NewReconciler(database, reconcile.ReconcilerConfig{}, logger.With().Str("component", "reconciler").Logger())

	source := calendar.NewGoogleSource(ctx, calendar.GoogleCredentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
	}, cfg.CalendarID, cfg.TutoringMarker, cfg.PollWindow)
	normalizer := calendar.NewNormalizer(cfg.TutoringMarker, cfg.GraceWindow, logger.With().Str("component", "normalizer").Logger())
	poller := calendar.NewPoller(source, normalizer)

	engine := reconcile.NewEngine(poller, database, workflow, reconciler, cfg.PollInterval, logger.With().Str("component", "engine").Logger())
	discordBot.SetReplyHandler(engine)

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start discord bot")
	}
	defer discordBot.Stop()

	// Start API server
	apiServer := api.New(cfg, database, logger.With().Str("component", "api").Logger())
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	// Start reconciliation loop
	go engine.Run(ctx)

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().
		Timestamp().
		Str("service", "tutorflow").
		Logger()
}
