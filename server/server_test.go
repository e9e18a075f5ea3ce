package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/testutil"
)

// fakeNow is a manually advanced wall clock.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestMux(t *testing.T, mode clock.Mode) (http.Handler, *db.MemoryStore, *fakeNow) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := db.NewMemoryStore()
	now := &fakeNow{t: time.UnixMilli(1741190400000)}
	h := NewMux(ctx, Deps{
		Store:        store,
		Mode:         mode,
		TickInterval: time.Hour,
		Now:          now.Now,
	})
	return h, store, now
}

func TestHealthzOK(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
}

func TestReadyzReady(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ready" {
		t.Fatalf("expected status=ready, got %q", resp["status"])
	}
}

func TestReadyzNotReadyAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewMux(ctx, Deps{})
	cancel()

	rr := testutil.Do(t, h, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp map[string]string
	testutil.DecodeJSON(t, rr, &resp)
	if resp["failed_check"] != "shutdown" {
		t.Fatalf("failed_check = %q", resp["failed_check"])
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Fatalf("X-Correlation-ID = %q", got)
	}

	rr = testutil.Do(t, h, http.MethodGet, "/healthz", nil)
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("expected generated correlation id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)
	rr := testutil.Do(t, h, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/codec/decode"},
		{http.MethodGet, "/score"},
		{http.MethodPost, "/session"},
		{http.MethodPut, "/matches"},
	} {
		if rr := testutil.Do(t, h, tc.method, tc.path, nil); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, Deps{}, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
