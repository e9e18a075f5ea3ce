// Package db provides database connection helpers, schema migration, and the match stores.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/hmad-scout/match"
)

// ErrNotFound is returned when a match id does not exist.
var ErrNotFound = errors.New("match not found")

// Sources recorded with a stored match.
const (
	SourceSession = "session"
	SourceText    = "text"
	SourceJSON    = "json"
)

// Record is a stored match.
type Record struct {
	ID        string
	Source    string
	Match     match.Match
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the listing view of a stored match.
type Summary struct {
	ID              string    `json:"id"`
	TeamNumber      string    `json:"teamNumber"`
	StartTimeMS     *int64    `json:"startTime"`
	DurationSeconds *int64    `json:"duration"`
	Source          string    `json:"source"`
	Events          int       `json:"events"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ListFilter narrows ListMatches. Zero values mean no restriction; Limit is
// capped at MaxListLimit.
type ListFilter struct {
	TeamNumber string
	Limit      int
	Offset     int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store persists recorded and imported matches.
type Store interface {
	// SaveMatch inserts or replaces rec. An empty ID is assigned a new one.
	SaveMatch(ctx context.Context, rec Record) (Record, error)
	GetMatch(ctx context.Context, id string) (Record, error)
	// ListMatches returns summaries newest first.
	ListMatches(ctx context.Context, f ListFilter) ([]Summary, error)
	DeleteMatches(ctx context.Context, ids []string) (int, error)
	// MatchIDsForRetention returns the ids the policy no longer retains,
	// oldest first.
	MatchIDsForRetention(ctx context.Context, policy RetentionPolicy, now time.Time) ([]string, error)
	Ping(ctx context.Context) error
}

// Connect opens a Postgres connection pool for dsn.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DB_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func summarize(rec Record) Summary {
	s := Summary{
		ID:         rec.ID,
		TeamNumber: rec.Match.TeamNumber,
		Source:     rec.Source,
		Events:     len(rec.Match.Events),
		CreatedAt:  rec.CreatedAt,
	}
	if rec.Match.StartTimeMS != nil {
		s.StartTimeMS = match.Int64(*rec.Match.StartTimeMS)
	}
	if rec.Match.DurationSeconds != nil {
		s.DurationSeconds = match.Int64(*rec.Match.DurationSeconds)
	}
	return s
}
