package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/testutil"
)

func TestScoreFromText(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodPost, "/score", map[string]any{
		"text":        testutil.SampleText,
		"motif":       "pgp",
		"autoPattern": "p g p x x",
		"autoLeave":   true,
		"teleopPark":  "FULL",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp scoreResponse
	testutil.DecodeJSON(t, rr, &resp)
	// 3 scored * 3 + 3 motif matches * 2 + leave 3 + full park 10
	if resp.Total != 28 || resp.ArtifactPoints != 9 || resp.MotifPoints.Auto != 6 || resp.ParkPoints != 10 {
		t.Fatalf("breakdown = %+v", resp.Breakdown)
	}
	if resp.Input.Motif != "PGP" || resp.Input.AutoPattern != "PGP" {
		t.Fatalf("input not normalized: %+v", resp.Input)
	}
}

func TestScoreRejectsBadInput(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodPost, "/score", map[string]any{"text": testutil.SampleText, "motif": "PG"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short motif: expected 400, got %d", rr.Code)
	}
	rr = testutil.Do(t, h, http.MethodPost, "/score", map[string]any{"text": testutil.SampleText, "teleopPark": "hover"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad park: expected 400, got %d", rr.Code)
	}
	rr = testutil.Do(t, h, http.MethodPost, "/score", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rr.Code)
	}
}

func TestStatsAcrossInputs(t *testing.T) {
	h, store, _ := newTestMux(t, clock.FreeRun)
	rec, err := store.SaveMatch(context.Background(), db.Record{Source: db.SourceText, Match: testutil.SampleMatch(t)})
	if err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	rr := testutil.Do(t, h, http.MethodPost, "/stats", map[string]any{
		"matches": []map[string]any{
			{"text": testutil.SampleText},
			{"id": rec.ID},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp statsResponse
	testutil.DecodeJSON(t, rr, &resp)
	if resp.Matches != 2 || resp.Cycles != 4 || resp.Gates != 2 || resp.Attempted != 8 || resp.Scored != 6 {
		t.Fatalf("report = %+v", resp.Report)
	}
	if resp.Accuracy != 75 {
		t.Fatalf("accuracy = %v", resp.Accuracy)
	}
	want := []float64{3.25, 54.75, 3.25, 54.75}
	if len(resp.CycleTimes) != len(want) {
		t.Fatalf("cycleTimes = %v", resp.CycleTimes)
	}
	for i := range want {
		if resp.CycleTimes[i] != want[i] {
			t.Fatalf("cycleTimes = %v, want %v", resp.CycleTimes, want)
		}
	}
}

func TestStatsRequiresMatches(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodPost, "/stats", map[string]any{"matches": []any{}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = testutil.Do(t, h, http.MethodPost, "/stats", map[string]any{"matches": []map[string]any{{"text": "garbage"}}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed text: expected 422, got %d", rr.Code)
	}
}
