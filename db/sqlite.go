package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go sqlite driver registered as 'sqlite'

	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/crypto"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/telemetry"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id TEXT PRIMARY KEY,
	team_number TEXT NOT NULL DEFAULT '',
	start_time_ms INTEGER,
	duration_seconds INTEGER,
	format_version TEXT NOT NULL DEFAULT 'hmadv2',
	source TEXT NOT NULL DEFAULT '',
	event_count INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL,
	encryption_version INTEGER NOT NULL DEFAULT 0,
	encryption_key_id TEXT,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_matches_team_number ON matches(team_number);
CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches(created_at_ms);
`

// SQLiteStore keeps matches in a local SQLite file, for scouts recording on
// a laptop without a database server. It shares the payload layout and
// encryption of PostgresStore; timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	enc crypto.Encryptor
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and
// applies the schema. enc may be nil to store plaintext payloads.
func OpenSQLite(path string, enc crypto.Encryptor) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers.
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(sqliteSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	slog.Info("using sqlite match store", slog.String("path", path), slog.Bool("encrypted", enc != nil), slog.String("component", "db"))
	return &SQLiteStore{db: database, enc: enc, now: time.Now}, nil
}

// Close closes the database file.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveMatch(ctx context.Context, rec Record) (Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "db", "SaveMatch", telemetry.EventCountAttr(len(rec.Match.Events)))
	defer span.End()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	span.SetAttributes(telemetry.MatchIDAttr(rec.ID))
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	payload, err := codec.MarshalMatch(rec.Match)
	if err != nil {
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("encode match: %w", err)
	}
	stored, encVersion, keyID, err := sealPayload(s.enc, rec.ID, payload)
	if err != nil {
		telemetry.RecordError(span, err)
		return Record{}, err
	}

	q := `INSERT INTO matches(id, team_number, start_time_ms, duration_seconds, format_version, source, event_count, payload, encryption_version, encryption_key_id, created_at_ms)
		  VALUES(?,?,?,?,?,?,?,?,?,?,?)
		  ON CONFLICT(id) DO UPDATE SET
		    team_number=excluded.team_number,
		    start_time_ms=excluded.start_time_ms,
		    duration_seconds=excluded.duration_seconds,
		    format_version=excluded.format_version,
		    source=excluded.source,
		    event_count=excluded.event_count,
		    payload=excluded.payload,
		    encryption_version=excluded.encryption_version,
		    encryption_key_id=excluded.encryption_key_id,
		    updated_at_ms=?`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Match.TeamNumber,
		nullInt64(rec.Match.StartTimeMS),
		nullInt64(rec.Match.DurationSeconds),
		rec.Match.Version.String(),
		rec.Source,
		len(rec.Match.Events),
		stored,
		encVersion,
		keyID,
		rec.CreatedAt.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("save match %s: %w", rec.ID, err)
	}

	// An update keeps the original creation time.
	var createdMS int64
	if err := s.db.QueryRowContext(ctx, `SELECT created_at_ms FROM matches WHERE id = ?`, rec.ID).Scan(&createdMS); err != nil {
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("save match %s: %w", rec.ID, err)
	}
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	telemetry.RecordStored()
	return rec, nil
}

func (s *SQLiteStore) GetMatch(ctx context.Context, id string) (Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "db", "GetMatch", telemetry.MatchIDAttr(id))
	defer span.End()

	var (
		rec        = Record{ID: id}
		version    string
		stored     string
		encVersion int
		createdMS  int64
		updatedMS  sql.NullInt64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT source, format_version, payload, encryption_version, created_at_ms, updated_at_ms
		 FROM matches WHERE id = ?`, id)
	if err := row.Scan(&rec.Source, &version, &stored, &encVersion, &createdMS, &updatedMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("load match %s: %w", id, err)
	}
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	if updatedMS.Valid {
		rec.UpdatedAt = time.UnixMilli(updatedMS.Int64).UTC()
	}

	payload, err := openPayload(s.enc, id, stored, encVersion)
	if err != nil {
		telemetry.RecordError(span, err)
		return Record{}, err
	}
	m, skipped, err := codec.UnmarshalMatch(payload)
	if err != nil {
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("decode match %s: %w", id, err)
	}
	if skipped > 0 {
		slog.Warn("stored match had invalid events", slog.String("match_id", id), slog.Int("skipped", skipped), slog.String("component", "db"))
	}
	if version == match.V1.String() {
		m.Version = match.V1
	}
	rec.Match = m
	return rec, nil
}

func (s *SQLiteStore) ListMatches(ctx context.Context, f ListFilter) ([]Summary, error) {
	q := `SELECT id, team_number, start_time_ms, duration_seconds, source, event_count, created_at_ms FROM matches`
	args := []any{}
	if f.TeamNumber != "" {
		q += ` WHERE team_number = ?`
		args = append(args, f.TeamNumber)
	}
	q += ` ORDER BY created_at_ms DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.limit(), max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()

	out := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			start     sql.NullInt64
			duration  sql.NullInt64
			createdMS int64
		)
		if err := rows.Scan(&sum.ID, &sum.TeamNumber, &start, &duration, &sum.Source, &sum.Events, &createdMS); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		if start.Valid {
			sum.StartTimeMS = match.Int64(start.Int64)
		}
		if duration.Valid {
			sum.DurationSeconds = match.Int64(duration.Int64)
		}
		sum.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMatches(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete matches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) MatchIDsForRetention(ctx context.Context, policy RetentionPolicy, now time.Time) ([]string, error) {
	if !policy.Enabled() {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at_ms FROM matches`)
	if err != nil {
		return nil, fmt.Errorf("query matches for retention: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var all []retentionRow
	for rows.Next() {
		var (
			r         retentionRow
			createdMS int64
		)
		if err := rows.Scan(&r.id, &createdMS); err != nil {
			return nil, fmt.Errorf("scan retention row: %w", err)
		}
		r.createdAt = time.UnixMilli(createdMS).UTC()
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expiredIDs(all, policy, now), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
