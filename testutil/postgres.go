package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/hmad-scout/db"
)

// SetupTestDB creates a test database connection, applies the schema and
// empties the matches table. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.Exec(`TRUNCATE matches`); err != nil {
		database.Close()
		t.Fatalf("failed to truncate matches: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// NewStore returns a Postgres-backed store when TEST_PG_DSN is set and an
// in-memory store otherwise, so store-agnostic tests run everywhere.
func NewStore(t *testing.T) db.Store {
	t.Helper()
	if os.Getenv("TEST_PG_DSN") == "" {
		return db.NewMemoryStore()
	}
	return db.NewPostgresStore(SetupTestDB(t), nil)
}
