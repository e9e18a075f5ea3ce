package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/testutil"
)

func TestSessionStructuredLifecycle(t *testing.T) {
	h, store, now := newTestMux(t, clock.Structured)

	rr := testutil.Do(t, h, http.MethodGet, "/session", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("no session: expected 404, got %d", rr.Code)
	}

	rr = testutil.Do(t, h, http.MethodPost, "/session/start", map[string]any{"teamNumber": 118, "notes": "fast"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var view sessionView
	testutil.DecodeJSON(t, rr, &view)
	if !view.Running || view.Mode != "structured" || view.Phase != string(match.PhaseAuto) {
		t.Fatalf("start view = %+v", view)
	}

	rr = testutil.Do(t, h, http.MethodPost, "/session/start", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", rr.Code)
	}

	now.Advance(5 * time.Second)
	rr = testutil.Do(t, h, http.MethodPost, "/session/cycle", map[string]int{"attempted": 3, "scored": 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("cycle: expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var ev eventResponse
	testutil.DecodeJSON(t, rr, &ev)
	if ev.Event.Timestamp != 5000 || ev.Event.Phase != string(match.PhaseAuto) {
		t.Fatalf("cycle event = %+v", ev.Event)
	}

	now.Advance(35 * time.Second)
	rr = testutil.Do(t, h, http.MethodPost, "/session/gate", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("gate: expected 201, got %d", rr.Code)
	}
	testutil.DecodeJSON(t, rr, &ev)
	if ev.Event.Phase != string(match.PhaseTeleop) || ev.Session.Phase != string(match.PhaseTeleop) {
		t.Fatalf("gate event = %+v", ev)
	}

	rr = testutil.Do(t, h, http.MethodPost, "/session/cycle", map[string]int{"attempted": 1, "scored": 2})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("scored > attempted: expected 400, got %d", rr.Code)
	}

	rr = testutil.Do(t, h, http.MethodPost, "/session/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rr.Code)
	}
	testutil.DecodeJSON(t, rr, &view)
	if view.Running || !view.Stopped || view.StopReason != string(clock.StopManual) || view.MatchID == "" {
		t.Fatalf("stop view = %+v", view)
	}
	if view.Match.Duration == nil || *view.Match.Duration != 40 {
		t.Fatalf("duration = %v", view.Match.Duration)
	}

	rec, err := store.GetMatch(context.Background(), view.MatchID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if rec.Source != db.SourceSession || rec.Match.TeamNumber != "118" || len(rec.Match.Events) != 2 {
		t.Fatalf("stored = %+v", rec)
	}

	rr = testutil.Do(t, h, http.MethodPost, "/session/cycle", map[string]int{"attempted": 1, "scored": 1})
	if rr.Code != http.StatusConflict {
		t.Fatalf("cycle after stop: expected 409, got %d", rr.Code)
	}
}

func TestSessionNotesAndUndoAfterStopResave(t *testing.T) {
	h, store, now := newTestMux(t, clock.FreeRun)

	testutil.Do(t, h, http.MethodPost, "/session/start", nil)
	now.Advance(2 * time.Second)
	testutil.Do(t, h, http.MethodPost, "/session/gate", nil)
	now.Advance(3 * time.Second)
	testutil.Do(t, h, http.MethodPost, "/session/cycle", map[string]int{"attempted": 2, "scored": 2})
	rr := testutil.Do(t, h, http.MethodPost, "/session/stop", nil)
	var view sessionView
	testutil.DecodeJSON(t, rr, &view)
	id := view.MatchID

	rr = testutil.Do(t, h, http.MethodPut, "/session/notes", map[string]string{"notes": "defended well"})
	if rr.Code != http.StatusOK {
		t.Fatalf("notes: expected 200, got %d", rr.Code)
	}
	rr = testutil.Do(t, h, http.MethodPost, "/session/undo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("undo: expected 200, got %d", rr.Code)
	}
	var ev eventResponse
	testutil.DecodeJSON(t, rr, &ev)
	if ev.Event == nil || ev.Event.Type != string(match.KindCycle) || ev.Session.MatchID != id {
		t.Fatalf("undo = %+v", ev)
	}

	rec, err := store.GetMatch(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if rec.Match.Notes != "defended well" || len(rec.Match.Events) != 1 {
		t.Fatalf("stored after edits = %+v", rec.Match)
	}
	list, _ := store.ListMatches(context.Background(), db.ListFilter{})
	if len(list) != 1 {
		t.Fatalf("expected edits to replace the stored match, got %d rows", len(list))
	}
}

func TestSessionUndoEmpty(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)
	testutil.Do(t, h, http.MethodPost, "/session/start", nil)

	rr := testutil.Do(t, h, http.MethodPost, "/session/undo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var ev eventResponse
	testutil.DecodeJSON(t, rr, &ev)
	if ev.Event != nil {
		t.Fatalf("expected no event, got %+v", ev.Event)
	}
}

func TestSessionStructuredClampsAtFullTime(t *testing.T) {
	h, store, now := newTestMux(t, clock.Structured)
	testutil.Do(t, h, http.MethodPost, "/session/start", map[string]string{"teamNumber": "254"})

	now.Advance(clock.MatchDuration + 10*time.Second)
	rr := testutil.Do(t, h, http.MethodPost, "/session/cycle", map[string]int{"attempted": 1, "scored": 1})
	if rr.Code != http.StatusConflict {
		t.Fatalf("cycle after full time: expected 409, got %d", rr.Code)
	}

	rr = testutil.Do(t, h, http.MethodGet, "/session", nil)
	var view sessionView
	testutil.DecodeJSON(t, rr, &view)
	if !view.Stopped || view.StopReason != string(clock.StopPhase) || view.ElapsedMS != clock.MatchDuration.Milliseconds() {
		t.Fatalf("view = %+v", view)
	}
	rec, err := store.GetMatch(context.Background(), view.MatchID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if rec.Match.DurationSeconds == nil || *rec.Match.DurationSeconds != 158 {
		t.Fatalf("duration = %v", rec.Match.DurationSeconds)
	}
	if d, err := codec.Decode(view.Text); err != nil || d.Match.TeamNumber != "254" {
		t.Fatalf("session text %q: %v", view.Text, err)
	}
}

func TestSessionStartValidation(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodPost, "/session/start", map[string]string{"mode": "sprint"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad mode: expected 400, got %d", rr.Code)
	}
	rr = testutil.Do(t, h, http.MethodPost, "/session/start", map[string]int{"timerSeconds": -1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative timer: expected 400, got %d", rr.Code)
	}
	for _, team := range []string{"118/B", "1;2"} {
		rr = testutil.Do(t, h, http.MethodPost, "/session/start", map[string]string{"teamNumber": team})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("team %q: expected 400, got %d", team, rr.Code)
		}
	}
	rr = testutil.Do(t, h, http.MethodPost, "/session/cycle", map[string]int{"attempted": 1, "scored": 1})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cycle without session: expected 404, got %d", rr.Code)
	}
}

func TestSessionConcurrentStartOneWins(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(`{"teamNumber": "118"}`))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	if created != 1 || conflicts != n-1 {
		t.Fatalf("codes = %v, want one 201 and %d 409s", codes, n-1)
	}
}
