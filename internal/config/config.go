package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Discord Bot
	DiscordToken     string
	DiscordChannelID string

	// Google Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	CalendarID         string
	TutoringMarker     string

	// Database
	DatabaseURL string

	// Reconciliation
	PollInterval   time.Duration
	PollWindow     time.Duration
	GraceWindow    time.Duration
	ConfirmTimeout time.Duration
	RemindAfter    time.Duration

	// Web Server
	WebBind       string
	JWTSecret     string
	AdminPassword string

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:       os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID:   os.Getenv("DISCORD_CHANNEL_ID"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),
		CalendarID:         getEnvDefault("CALENDAR_ID", "primary"),
		TutoringMarker:     getEnvDefault("TUTORING_MARKER", "Ripetizioni"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PollInterval:       getEnvMinutes("POLL_INTERVAL_MINUTES", 5),
		PollWindow:         getEnvMinutes("POLL_WINDOW_MINUTES", 36*60),
		GraceWindow:        getEnvMinutes("GRACE_WINDOW_MINUTES", 24*60),
		ConfirmTimeout:     getEnvMinutes("CONFIRM_TIMEOUT_MINUTES", 12*60),
		RemindAfter:        getEnvMinutes("REMIND_AFTER_MINUTES", 2*60),
		WebBind:            getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		JWTSecret:          getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		LogLevel:           getEnvDefault("LOG_LEVEL", "info"),
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.DiscordChannelID == "" {
		return nil, fmt.Errorf("DISCORD_CHANNEL_ID is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.GoogleRefreshToken == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REFRESH_TOKEN are required")
	}
	if cfg.RemindAfter >= cfg.ConfirmTimeout {
		return nil, fmt.Errorf("REMIND_AFTER_MINUTES must be shorter than CONFIRM_TIMEOUT_MINUTES")
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvMinutes(key string, defaultMinutes int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return time.Duration(defaultMinutes) * time.Minute
}
