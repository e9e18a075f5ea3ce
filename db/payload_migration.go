package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/hmad-scout/crypto"
)

// PayloadMigration summarizes an EncryptPlaintextPayloads run.
type PayloadMigration struct {
	Found    int
	Migrated int
	Errors   int
	DryRun   bool
}

// EncryptPlaintextPayloads seals every payload stored with
// encryption_version 0 using the store's encryptor. Each row is updated in
// its own transaction; rows that changed concurrently are reported as errors
// and left untouched.
func (s *PostgresStore) EncryptPlaintextPayloads(ctx context.Context, dryRun bool) (PayloadMigration, error) {
	res := PayloadMigration{DryRun: dryRun}
	if s.enc == nil {
		return res, fmt.Errorf("payload migration requires NOTES_ENCRYPTION_KEY")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM matches WHERE encryption_version = 0 ORDER BY created_at`)
	if err != nil {
		return res, fmt.Errorf("query plaintext payloads: %w", err)
	}
	type row struct{ id, payload string }
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			rows.Close()
			return res, fmt.Errorf("scan payload row: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, fmt.Errorf("iterate payload rows: %w", err)
	}
	rows.Close()

	res.Found = len(pending)
	if res.Found == 0 {
		slog.Info("no plaintext payloads found to migrate", slog.String("component", "db_encryption"))
		return res, nil
	}
	slog.Info("found plaintext payloads to migrate", slog.Int("count", res.Found), slog.Bool("dry_run", dryRun), slog.String("component", "db_encryption"))

	for i, r := range pending {
		logger := slog.With(slog.String("id", r.id), slog.Int("index", i+1), slog.Int("total", len(pending)), slog.String("component", "db_encryption"))
		if dryRun {
			logger.Info("would encrypt payload (dry-run)")
			res.Migrated++
			continue
		}
		if err := s.encryptPayload(ctx, r.id, r.payload); err != nil {
			logger.Error("failed to encrypt payload", slog.Any("err", err))
			res.Errors++
			continue
		}
		res.Migrated++
	}

	slog.Info("payload migration summary",
		slog.Int("total", res.Found),
		slog.Int("migrated", res.Migrated),
		slog.Int("errors", res.Errors),
		slog.Bool("dry_run", dryRun),
		slog.String("component", "db_encryption"))
	if res.Errors > 0 {
		return res, fmt.Errorf("payload migration completed with %d errors", res.Errors)
	}
	return res, nil
}

func (s *PostgresStore) encryptPayload(ctx context.Context, id, payload string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	sealed, version, keyID, err := sealPayload(s.enc, id, []byte(payload))
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE matches SET payload=$1, encryption_version=$2, encryption_key_id=$3, updated_at=NOW()
		 WHERE id=$4 AND encryption_version = 0`,
		sealed, version, keyID, id)
	if err != nil {
		return fmt.Errorf("update payload: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (match may have been modified concurrently)", n)
	}
	return tx.Commit()
}

// PayloadEncryptionStatus counts stored matches per encryption_version.
func (s *PostgresStore) PayloadEncryptionStatus(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT encryption_version, COUNT(*) FROM matches GROUP BY encryption_version`)
	if err != nil {
		return nil, fmt.Errorf("query encryption status: %w", err)
	}
	defer rows.Close()
	out := map[int]int{}
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return nil, fmt.Errorf("scan encryption status: %w", err)
		}
		out[version] = count
	}
	return out, rows.Err()
}

// EncryptionVersionName describes an encryption_version value.
func EncryptionVersionName(v int) string {
	switch v {
	case crypto.VersionPlaintext:
		return "plaintext"
	case crypto.VersionAESGCM:
		return "encrypted (AES-256-GCM)"
	default:
		return fmt.Sprintf("unknown version %d", v)
	}
}
