package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/onnwee/hmad-scout/telemetry"
)

// RetentionPolicy defines which stored matches are kept. A match is kept if
// either enabled rule retains it.
type RetentionPolicy struct {
	// KeepLastNDays: matches created within this many days are kept (0 = disabled)
	KeepLastNDays int
	// KeepLastNMatches: the N most recently created matches are kept (0 = disabled)
	KeepLastNMatches int
	// DryRun: log what would be deleted without deleting
	DryRun bool
	// Interval: how often the job runs
	Interval time.Duration
}

// Enabled reports whether any retention rule is configured.
func (p RetentionPolicy) Enabled() bool {
	return p.KeepLastNDays > 0 || p.KeepLastNMatches > 0
}

// LoadRetentionPolicy loads retention policy configuration from environment variables.
func LoadRetentionPolicy() RetentionPolicy {
	policy := RetentionPolicy{
		Interval: 6 * time.Hour,
	}
	if s := os.Getenv("RETENTION_KEEP_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepLastNDays = n
		}
	}
	if s := os.Getenv("RETENTION_KEEP_COUNT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepLastNMatches = n
		}
	}
	if v := os.Getenv("RETENTION_DRY_RUN"); v == "1" || v == "true" {
		policy.DryRun = true
	}
	if s := os.Getenv("RETENTION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			policy.Interval = d
		}
	}
	return policy
}

type retentionRow struct {
	id        string
	createdAt time.Time
}

// expiredIDs applies policy to rows and returns the ids it does not retain,
// oldest first. rows may be in any order.
func expiredIDs(rows []retentionRow, policy RetentionPolicy, now time.Time) []string {
	if !policy.Enabled() {
		return nil
	}
	sorted := append([]retentionRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].createdAt.Equal(sorted[j].createdAt) {
			return sorted[i].createdAt.After(sorted[j].createdAt)
		}
		return sorted[i].id > sorted[j].id
	})

	var cutoff time.Time
	if policy.KeepLastNDays > 0 {
		cutoff = now.Add(-time.Duration(policy.KeepLastNDays) * 24 * time.Hour)
	}
	var out []string
	for i := len(sorted) - 1; i >= 0; i-- {
		r := sorted[i]
		if policy.KeepLastNMatches > 0 && i < policy.KeepLastNMatches {
			continue
		}
		if policy.KeepLastNDays > 0 && !r.createdAt.Before(cutoff) {
			continue
		}
		out = append(out, r.id)
	}
	return out
}

// StartRetentionJob periodically deletes matches the policy no longer
// retains. It returns immediately when no rule is configured and otherwise
// blocks until ctx is done.
func StartRetentionJob(ctx context.Context, store Store, policy RetentionPolicy) {
	if !policy.Enabled() {
		slog.Info("retention job disabled (no policy configured)", slog.String("component", "retention"))
		return
	}
	if policy.Interval <= 0 {
		policy.Interval = 6 * time.Hour
	}

	slog.Info("retention job starting",
		slog.String("component", "retention"),
		slog.Int("keep_days", policy.KeepLastNDays),
		slog.Int("keep_count", policy.KeepLastNMatches),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval))

	if _, err := RunRetentionCleanup(ctx, store, policy, time.Now()); err != nil {
		slog.Warn("retention cleanup failed", slog.Any("err", err), slog.String("component", "retention"))
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("retention job stopped", slog.String("component", "retention"))
			return
		case <-ticker.C:
			if _, err := RunRetentionCleanup(ctx, store, policy, time.Now()); err != nil {
				slog.Warn("retention cleanup failed", slog.Any("err", err), slog.String("component", "retention"))
			}
		}
	}
}

// RunRetentionCleanup performs a single cleanup cycle and returns the ids it
// deleted, or would delete in dry-run mode.
func RunRetentionCleanup(ctx context.Context, store Store, policy RetentionPolicy, now time.Time) ([]string, error) {
	logger := slog.Default().With(
		slog.String("component", "retention_cleanup"),
		slog.Bool("dry_run", policy.DryRun),
	)

	ids, err := store.MatchIDsForRetention(ctx, policy, now)
	if err != nil {
		return nil, fmt.Errorf("select expired matches: %w", err)
	}

	if policy.DryRun {
		for _, id := range ids {
			logger.Info("dry-run: would delete match", slog.String("match_id", id))
		}
		telemetry.RecordRetention(0)
		logger.Info("retention cleanup completed", slog.String("mode", "dry-run"), slog.Int("eligible", len(ids)))
		return ids, nil
	}

	deleted := 0
	if len(ids) > 0 {
		deleted, err = store.DeleteMatches(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("delete expired matches: %w", err)
		}
	}
	telemetry.RecordRetention(deleted)
	logger.Info("retention cleanup completed", slog.String("mode", "cleanup"), slog.Int("eligible", len(ids)), slog.Int("deleted", deleted))
	return ids, nil
}
