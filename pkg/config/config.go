// Package config loads runtime configuration from the environment and
// guardrail profiles from YAML.
package config

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds runtime configuration.
type Config struct {
	LogLevel       string
	OwnerAddress   string
	JournalBackend string // "memory" | "sqlite" | "postgres"
	SQLitePath     string
	DatabaseURL    string
	RedisAddr      string // empty keeps rate-window state in process
	OTLPEndpoint   string // empty disables the metrics exporter
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	owner := os.Getenv("OWNER_ADDRESS")
	if owner == "" {
		owner = "owner"
	}

	backend := os.Getenv("JOURNAL_BACKEND")
	if backend == "" {
		backend = "memory"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "mandate.db"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://mandate@localhost:5432/mandate?sslmode=disable"
	}

	return &Config{
		LogLevel:       logLevel,
		OwnerAddress:   owner,
		JournalBackend: backend,
		SQLitePath:     sqlitePath,
		DatabaseURL:    dbURL,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
	}
}

// ParseLevel maps a level name to its slog level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
