package db

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestLoadRetentionPolicy(t *testing.T) {
	t.Setenv("RETENTION_KEEP_DAYS", "30")
	t.Setenv("RETENTION_KEEP_COUNT", "bad")
	t.Setenv("RETENTION_DRY_RUN", "1")
	t.Setenv("RETENTION_INTERVAL", "15m")

	p := LoadRetentionPolicy()
	want := RetentionPolicy{KeepLastNDays: 30, DryRun: true, Interval: 15 * time.Minute}
	if p != want {
		t.Errorf("LoadRetentionPolicy() = %+v, want %+v", p, want)
	}
}

func TestLoadRetentionPolicyDefaults(t *testing.T) {
	for _, k := range []string{"RETENTION_KEEP_DAYS", "RETENTION_KEEP_COUNT", "RETENTION_DRY_RUN", "RETENTION_INTERVAL"} {
		t.Setenv(k, "")
	}
	p := LoadRetentionPolicy()
	if p.Enabled() || p.Interval != 6*time.Hour || p.DryRun {
		t.Errorf("defaults = %+v", p)
	}
}

func TestExpiredIDs(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	rows := []retentionRow{
		{id: "d", createdAt: now.Add(-1 * day)},
		{id: "a", createdAt: now.Add(-40 * day)},
		{id: "c", createdAt: now.Add(-5 * day)},
		{id: "b", createdAt: now.Add(-20 * day)},
	}

	tests := []struct {
		name   string
		policy RetentionPolicy
		want   []string
	}{
		{"disabled", RetentionPolicy{}, nil},
		{"days only", RetentionPolicy{KeepLastNDays: 7}, []string{"a", "b"}},
		{"count only", RetentionPolicy{KeepLastNMatches: 1}, []string{"a", "b", "c"}},
		{"union keeps more", RetentionPolicy{KeepLastNDays: 2, KeepLastNMatches: 3}, []string{"a"}},
		{"everything retained", RetentionPolicy{KeepLastNDays: 365}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expiredIDs(rows, tt.policy, now)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expiredIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunRetentionCleanup(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = steppedClock(start)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, _ := s.SaveMatch(ctx, Record{Match: testMatch("118", 1)})
		ids = append(ids, rec.ID)
	}
	policy := RetentionPolicy{KeepLastNMatches: 2, DryRun: true}

	got, err := RunRetentionCleanup(ctx, s, policy, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !reflect.DeepEqual(got, ids[:3]) {
		t.Errorf("dry run ids = %v, want %v", got, ids[:3])
	}
	if all, _ := s.ListMatches(ctx, ListFilter{}); len(all) != 5 {
		t.Errorf("dry run deleted matches: %d left", len(all))
	}

	policy.DryRun = false
	if _, err := RunRetentionCleanup(ctx, s, policy, start.Add(time.Hour)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	all, _ := s.ListMatches(ctx, ListFilter{})
	if len(all) != 2 || all[0].ID != ids[4] || all[1].ID != ids[3] {
		t.Errorf("remaining = %+v", all)
	}
}

func TestStartRetentionJobDisabledReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		StartRetentionJob(context.Background(), NewMemoryStore(), RetentionPolicy{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled retention job did not return")
	}
}

func TestStartRetentionJobStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartRetentionJob(ctx, NewMemoryStore(), RetentionPolicy{KeepLastNDays: 1, Interval: 10 * time.Millisecond})
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention job did not stop")
	}
}
