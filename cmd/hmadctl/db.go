package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/onnwee/hmad-scout/crypto"
	"github.com/onnwee/hmad-scout/db"
)

// dbCommand groups the schema and encryption maintenance commands. They read
// DB_DSN and NOTES_ENCRYPTION_KEY from the environment like the service.
func dbCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Manage the Postgres match store",
		Before: func(cCtx *cli.Context) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(cCtx.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelInfo})))
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply all pending schema migrations",
				Action: withDB(func(cCtx *cli.Context, database *sql.DB) error {
					if err := db.RunMigrations(database); err != nil {
						return err
					}
					return printVersion(cCtx, database)
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the most recent schema migration",
				Action: withDB(func(cCtx *cli.Context, database *sql.DB) error {
					if err := db.MigrateDown(database); err != nil {
						return err
					}
					return printVersion(cCtx, database)
				}),
			},
			{
				Name:   "version",
				Usage:  "Print the current schema version",
				Action: withDB(printVersion),
			},
			{
				Name:  "encrypt-payloads",
				Usage: "Encrypt match payloads stored in plaintext with NOTES_ENCRYPTION_KEY",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Show what would be migrated without making changes"},
				},
				Action: withDB(encryptPayloads),
			},
		},
	}
}

func withDB(fn func(*cli.Context, *sql.DB) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		dsn := os.Getenv("DB_DSN")
		if dsn == "" {
			return fmt.Errorf("DB_DSN environment variable is required")
		}
		database, err := db.Connect(dsn)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.PingContext(cCtx.Context); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		return fn(cCtx, database)
	}
}

func printVersion(cCtx *cli.Context, database *sql.DB) error {
	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cCtx.App.Writer, "schema version %d (dirty=%v)\n", version, dirty)
	return err
}

func encryptPayloads(cCtx *cli.Context, database *sql.DB) error {
	key := os.Getenv("NOTES_ENCRYPTION_KEY")
	if key == "" {
		return fmt.Errorf("NOTES_ENCRYPTION_KEY environment variable is required for migration")
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		return fmt.Errorf("failed to initialize encryptor: %w", err)
	}
	store := db.NewPostgresStore(database, enc)
	if _, err := store.EncryptPlaintextPayloads(cCtx.Context, cCtx.Bool("dry-run")); err != nil {
		return err
	}

	status, err := store.PayloadEncryptionStatus(cCtx.Context)
	if err != nil {
		return err
	}
	versions := make([]int, 0, len(status))
	for v := range status {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	for _, v := range versions {
		fmt.Fprintf(cCtx.App.Writer, "%-28s %d\n", db.EncryptionVersionName(v), status[v])
	}
	return nil
}
