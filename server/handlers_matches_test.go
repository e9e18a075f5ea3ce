package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/testutil"
)

func TestImportTextAndFetch(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodPost, "/matches", testutil.SampleText)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import: expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var imp importResponse
	testutil.DecodeJSON(t, rr, &imp)
	if imp.ID == "" || imp.Skipped != 0 {
		t.Fatalf("import = %+v", imp)
	}

	rr = testutil.Do(t, h, http.MethodGet, "/matches/"+imp.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	var got matchResponse
	testutil.DecodeJSON(t, rr, &got)
	if got.Source != db.SourceText || got.Version != "hmadv2" || len(got.Match.Events) != 3 {
		t.Fatalf("get = %+v", got)
	}

	rr = testutil.Do(t, h, http.MethodGet, "/matches/"+imp.ID+"/text", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != testutil.SampleText {
		t.Fatalf("text = %d %q", rr.Code, rr.Body.String())
	}
}

func TestImportJSONDocument(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)
	body := `{"teamNumber": 254, "notes": "", "startTime": null, "duration": null,
		"events": [{"type": "cycle", "timestamp": 1500, "total": 2, "scored": 1},
		           {"type": "cycle", "timestamp": 2500, "total": 9, "scored": 1}]}`

	rr := testutil.Do(t, h, http.MethodPost, "/matches", []byte(body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var imp importResponse
	testutil.DecodeJSON(t, rr, &imp)
	if imp.Skipped != 1 {
		t.Fatalf("skipped = %d", imp.Skipped)
	}

	rr = testutil.Do(t, h, http.MethodGet, "/matches?team=254", nil)
	var list []db.Summary
	testutil.DecodeJSON(t, rr, &list)
	if len(list) != 1 || list[0].Source != db.SourceJSON || list[0].Events != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestImportRejectsLegacyAndMalformed(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	for _, text := range []string{"254;; 1/1 at 0:05;", "no separator"} {
		rr := testutil.Do(t, h, http.MethodPost, "/matches", text)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%q: expected 422, got %d", text, rr.Code)
		}
	}
	rr := testutil.Do(t, h, http.MethodPost, "/matches", "254;; 1/1 at 0:05;")
	if body := rr.Body.String(); !strings.Contains(body, "without a version token") || !strings.Contains(body, "254") {
		t.Errorf("legacy body = %s", body)
	}
	rr = testutil.Do(t, h, http.MethodPost, "/matches", []byte(`{"events": "nope"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", rr.Code)
	}
}

func TestListMatchesEmptyAndPaged(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodGet, "/matches", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "[]\n" {
		t.Fatalf("empty list = %d %q", rr.Code, rr.Body.String())
	}

	doc := codec.ToDocument(testutil.SampleMatch(t))
	for i := 0; i < 3; i++ {
		testutil.Do(t, h, http.MethodPost, "/matches", doc)
	}
	rr = testutil.Do(t, h, http.MethodGet, "/matches?limit=2&offset=2", nil)
	var list []db.Summary
	testutil.DecodeJSON(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("paged list len = %d", len(list))
	}

	// Malformed and negative paging falls back to the defaults.
	rr = testutil.Do(t, h, http.MethodGet, "/matches?limit=abc&offset=-4", nil)
	list = nil
	testutil.DecodeJSON(t, rr, &list)
	if len(list) != 3 {
		t.Fatalf("fallback list len = %d", len(list))
	}
}

func TestDeleteMatch(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)
	rr := testutil.Do(t, h, http.MethodPost, "/matches", testutil.SampleText)
	var imp importResponse
	testutil.DecodeJSON(t, rr, &imp)

	if rr := testutil.Do(t, h, http.MethodDelete, "/matches/"+imp.ID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	if rr := testutil.Do(t, h, http.MethodDelete, "/matches/"+imp.ID, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
	if rr := testutil.Do(t, h, http.MethodGet, "/matches/"+imp.ID+"/text", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("text after delete: expected 404, got %d", rr.Code)
	}
	if rr := testutil.Do(t, h, http.MethodGet, "/matches/"+imp.ID+"/bogus", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown subresource: expected 404, got %d", rr.Code)
	}
}
