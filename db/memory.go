package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/hmad-scout/telemetry"
)

// MemoryStore keeps matches in process memory. It is used when no database
// is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) SaveMatch(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if prev, ok := s.records[rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
		rec.UpdatedAt = now
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.Match = rec.Match.Clone()
	s.records[rec.ID] = rec
	telemetry.RecordStored()
	return rec, nil
}

func (s *MemoryStore) GetMatch(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Match = rec.Match.Clone()
	return rec, nil
}

func (s *MemoryStore) ListMatches(_ context.Context, f ListFilter) ([]Summary, error) {
	s.mu.RLock()
	all := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		if f.TeamNumber != "" && rec.Match.TeamNumber != f.TeamNumber {
			continue
		}
		all = append(all, summarize(rec))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if f.Offset >= len(all) {
		return []Summary{}, nil
	}
	if f.Offset > 0 {
		all = all[f.Offset:]
	}
	if n := f.limit(); len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *MemoryStore) DeleteMatches(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MatchIDsForRetention(_ context.Context, policy RetentionPolicy, now time.Time) ([]string, error) {
	s.mu.RLock()
	rows := make([]retentionRow, 0, len(s.records))
	for id, rec := range s.records {
		rows = append(rows, retentionRow{id: id, createdAt: rec.CreatedAt})
	}
	s.mu.RUnlock()
	return expiredIDs(rows, policy, now), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
