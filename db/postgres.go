package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/crypto"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/telemetry"
)

// PostgresStore persists matches in the matches table. The match itself is
// stored as its JSON document in payload; when an encryptor is configured
// the payload is sealed with the row id as additional data and
// encryption_version is set to 1.
type PostgresStore struct {
	db  *sql.DB
	enc crypto.Encryptor
	now func() time.Time
}

// NewPostgresStore wraps db. enc may be nil to store plaintext payloads.
func NewPostgresStore(db *sql.DB, enc crypto.Encryptor) *PostgresStore {
	if enc == nil {
		slog.Warn("NOTES_ENCRYPTION_KEY not set, match payloads will be stored in plaintext", slog.String("component", "db_encryption"))
	} else {
		slog.Info("match payload encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"), slog.String("key_id", enc.KeyID()))
	}
	return &PostgresStore{db: db, enc: enc, now: time.Now}
}

// DB returns the underlying pool.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// sealPayload encrypts payload with id as additional data when enc is set.
func sealPayload(enc crypto.Encryptor, id string, payload []byte) (string, int, sql.NullString, error) {
	if enc == nil {
		return string(payload), crypto.VersionPlaintext, sql.NullString{}, nil
	}
	sealed, err := crypto.SealString(enc, string(payload), id)
	if err != nil {
		return "", 0, sql.NullString{}, fmt.Errorf("encrypt payload: %w", err)
	}
	return sealed, crypto.VersionAESGCM, sql.NullString{String: enc.KeyID(), Valid: true}, nil
}

func openPayload(enc crypto.Encryptor, id, stored string, version int) ([]byte, error) {
	switch version {
	case crypto.VersionPlaintext:
		return []byte(stored), nil
	case crypto.VersionAESGCM:
		if enc == nil {
			return nil, fmt.Errorf("match %s is encrypted but NOTES_ENCRYPTION_KEY not configured", id)
		}
		plain, err := crypto.OpenString(enc, stored, id)
		if err != nil {
			return nil, fmt.Errorf("decrypt payload: %w", err)
		}
		return []byte(plain), nil
	default:
		return nil, fmt.Errorf("match %s has unknown encryption_version %d", id, version)
	}
}

func (s *PostgresStore) SaveMatch(ctx context.Context, rec Record) (Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "db", "SaveMatch", telemetry.EventCountAttr(len(rec.Match.Events)))
	defer span.End()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	span.SetAttributes(telemetry.MatchIDAttr(rec.ID))
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
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

	q := `INSERT INTO matches(id, team_number, start_time_ms, duration_seconds, format_version, source, event_count, payload, encryption_version, encryption_key_id, created_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		  ON CONFLICT(id) DO UPDATE SET
		    team_number=EXCLUDED.team_number,
		    start_time_ms=EXCLUDED.start_time_ms,
		    duration_seconds=EXCLUDED.duration_seconds,
		    format_version=EXCLUDED.format_version,
		    source=EXCLUDED.source,
		    event_count=EXCLUDED.event_count,
		    payload=EXCLUDED.payload,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=NOW()
		  RETURNING created_at`
	err = s.db.QueryRowContext(ctx, q,
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
		rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("save match %s: %w", rec.ID, err)
	}
	telemetry.RecordStored()
	return rec, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id string) (Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "db", "GetMatch", telemetry.MatchIDAttr(id))
	defer span.End()

	var (
		rec        = Record{ID: id}
		version    string
		stored     string
		encVersion int
		updatedAt  sql.NullTime
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT source, format_version, payload, COALESCE(encryption_version, 0), created_at, updated_at
		 FROM matches WHERE id = $1`, id)
	if err := row.Scan(&rec.Source, &version, &stored, &encVersion, &rec.CreatedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		telemetry.RecordError(span, err)
		return Record{}, fmt.Errorf("load match %s: %w", id, err)
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
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

func (s *PostgresStore) ListMatches(ctx context.Context, f ListFilter) ([]Summary, error) {
	q := `SELECT id, team_number, start_time_ms, duration_seconds, source, event_count, created_at FROM matches`
	args := []any{}
	if f.TeamNumber != "" {
		args = append(args, f.TeamNumber)
		q += fmt.Sprintf(" WHERE team_number = $%d", len(args))
	}
	args = append(args, f.limit())
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

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
			sum      Summary
			start    sql.NullInt64
			duration sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.TeamNumber, &start, &duration, &sum.Source, &sum.Events, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		if start.Valid {
			sum.StartTimeMS = match.Int64(start.Int64)
		}
		if duration.Valid {
			sum.DurationSeconds = match.Int64(duration.Int64)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteMatches(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete matches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) MatchIDsForRetention(ctx context.Context, policy RetentionPolicy, now time.Time) ([]string, error) {
	if !policy.Enabled() {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at FROM matches`)
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
		var r retentionRow
		if err := rows.Scan(&r.id, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan retention row: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expiredIDs(all, policy, now), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
