package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/testutil"
)

func dialStream(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readView reads views until accept returns true.
func readView(t *testing.T, conn *websocket.Conn, accept func(sessionView) bool) sessionView {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var v sessionView
		if err := conn.ReadJSON(&v); err != nil {
			t.Fatalf("read view: %v", err)
		}
		if accept(v) {
			return v
		}
	}
}

func TestSessionStreamPushesChanges(t *testing.T) {
	h, _, now := newTestMux(t, clock.FreeRun)

	rr := testutil.Do(t, h, http.MethodPost, "/session/start", map[string]any{"teamNumber": "118"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", rr.Code, rr.Body.String())
	}
	conn := dialStream(t, h)

	first := readView(t, conn, func(sessionView) bool { return true })
	if !first.Running || first.Match.TeamNumber != "118" || len(first.Match.Events) != 0 {
		t.Fatalf("initial view = %+v", first)
	}

	now.Advance(4 * time.Second)
	if rr := testutil.Do(t, h, http.MethodPost, "/session/gate", nil); rr.Code != http.StatusCreated {
		t.Fatalf("gate: %d %s", rr.Code, rr.Body.String())
	}
	v := readView(t, conn, func(v sessionView) bool { return len(v.Match.Events) == 1 })
	if v.Match.Events[0].Type != "gate" || v.Match.Events[0].Timestamp != 4000 {
		t.Fatalf("event = %+v", v.Match.Events[0])
	}

	if rr := testutil.Do(t, h, http.MethodPost, "/session/stop", nil); rr.Code != http.StatusOK {
		t.Fatalf("stop: %d", rr.Code)
	}
	v = readView(t, conn, func(v sessionView) bool { return v.Stopped && v.MatchID != "" })
	if v.StopReason != string(clock.StopManual) {
		t.Fatalf("stop reason = %q", v.StopReason)
	}
}

func TestSessionStreamRejectsPlainGET(t *testing.T) {
	h, _, _ := newTestMux(t, clock.FreeRun)
	rr := testutil.Do(t, h, http.MethodGet, "/session/stream", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without upgrade headers, got %d", rr.Code)
	}
}
