package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/hmad-scout/match"
)

// SampleText is an hmadv2 export with a gate and two cycles.
const SampleText = "hmadv2/118/IA==/1741190400000/158;; 0:00; gate at 0:04; 2/3 at 0:07.250; 1/1 at 1:02;"

// SampleMatch returns the match encoded by SampleText.
func SampleMatch(t *testing.T) match.Match {
	t.Helper()
	m := match.New()
	m.TeamNumber = "118"
	m.StartTimeMS = match.Int64(1741190400000)
	m.DurationSeconds = match.Int64(158)
	m.AppendGate(4000, match.PhaseNone)
	if _, err := m.AppendCycle(3, 2, 7250, match.PhaseNone); err != nil {
		t.Fatalf("AppendCycle: %v", err)
	}
	if _, err := m.AppendCycle(1, 1, 62000, match.PhaseNone); err != nil {
		t.Fatalf("AppendCycle: %v", err)
	}
	return *m
}

// Do issues a request against h and returns the recorded response. body may
// be nil, a string, a []byte, or any value that is JSON encoded.
func Do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if _, isString := body.(string); body != nil && !isString {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON unmarshals a recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
