// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup: without DB_DSN or SQLITE_PATH
// matches are kept in memory only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/hmad-scout/clock"
)

const (
	DefaultHTTPAddr = ":8080"
)

type Config struct {
	// HTTP
	HTTPAddr string

	// Database; empty selects SQLitePath, then the in-memory store
	DBDsn string
	// SQLitePath is a local database file used when DBDsn is empty.
	SQLitePath string

	// Recording
	MatchMode    clock.Mode
	MatchTimer   time.Duration // free-run auto-stop, 0 = untimed
	TickInterval time.Duration

	// NotesEncryptionKey is a base64 AES-256 key used to encrypt stored match
	// payloads. Empty stores plaintext JSON.
	NotesEncryptionKey string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads environment variables and applies defaults. Malformed values are errors; missing ones
// fall back to defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}

	cfg.DBDsn = strings.TrimSpace(os.Getenv("DB_DSN"))
	cfg.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))

	mode, err := clock.ParseMode(strings.ToLower(strings.TrimSpace(os.Getenv("MATCH_MODE"))))
	if err != nil {
		return nil, fmt.Errorf("invalid MATCH_MODE: %w", err)
	}
	cfg.MatchMode = mode

	if v := os.Getenv("MATCH_TIMER_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid MATCH_TIMER_SECONDS %q: want a non-negative integer", v)
		}
		cfg.MatchTimer = time.Duration(n) * time.Second
	}

	cfg.TickInterval = clock.DefaultTickInterval
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid TICK_INTERVAL %q: want a positive duration", v)
		}
		cfg.TickInterval = d
	}

	cfg.NotesEncryptionKey = os.Getenv("NOTES_ENCRYPTION_KEY")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(os.Getenv("LOG_FORMAT"))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	return cfg, nil
}

// UsesDatabase reports whether matches are persisted to Postgres.
func (c *Config) UsesDatabase() bool { return c.DBDsn != "" }

// UsesSQLite reports whether matches are persisted to a local SQLite file.
func (c *Config) UsesSQLite() bool { return c.DBDsn == "" && c.SQLitePath != "" }
