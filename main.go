// Command hmad-scout is the main entrypoint for the scouting API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Selects a match store: Postgres (with versioned migrations) when DB_DSN
//     is set, a local SQLite file when SQLITE_PATH is set, in-memory
//     otherwise. Stored payloads are encrypted when NOTES_ENCRYPTION_KEY is set.
//   - Starts the retention job for stored matches.
//   - Exposes the HTTP API with /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/hmad-scout/config"
	"github.com/onnwee/hmad-scout/crypto"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/server"
	"github.com/onnwee/hmad-scout/telemetry"
)

const serviceVersion = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	telemetry.Init()

	// Tracing is optional; it stays a no-op without OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("hmad-scout", serviceVersion)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open match store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	go db.StartRetentionJob(ctx, store, db.LoadRetentionPolicy())

	deps := server.Deps{
		Store:        store,
		Mode:         cfg.MatchMode,
		Timer:        cfg.MatchTimer,
		TickInterval: cfg.TickInterval,
	}
	slog.Info("starting scouting service",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("match_mode", cfg.MatchMode.String()),
		slog.Bool("postgres", cfg.UsesDatabase()),
		slog.Bool("sqlite", cfg.UsesSQLite()),
	)
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogger installs the default slog logger. Unknown levels fall back to
// info; format is text or json.
func setupLogger(level, format string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// openStore returns the Postgres store when a DSN is configured, the SQLite
// store when SQLITE_PATH is set, and the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (db.Store, func(), error) {
	enc, err := newEncryptor(cfg.NotesEncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	if cfg.UsesSQLite() {
		store, err := db.OpenSQLite(cfg.SQLitePath, enc)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}, nil
	}
	if !cfg.UsesDatabase() {
		slog.Warn("DB_DSN and SQLITE_PATH not set, matches are kept in memory only")
		return db.NewMemoryStore(), func() {}, nil
	}

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}

	// Versioned migrations first; the embedded SQL fallback covers databases
	// that predate the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return db.NewPostgresStore(database, enc), closeDB, nil
}

// newEncryptor returns nil for an empty key.
func newEncryptor(key string) (crypto.Encryptor, error) {
	if key == "" {
		return nil, nil
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
