package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/hmad-scout/telemetry"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// sessionHub fans session change notifications out to stream subscribers.
// Notifications coalesce: a slow subscriber sees the latest view, not every
// intermediate one.
type sessionHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newSessionHub() *sessionHub {
	return &sessionHub{subs: make(map[chan struct{}]struct{})}
}

func (hub *sessionHub) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	hub.mu.Lock()
	hub.subs[ch] = struct{}{}
	hub.mu.Unlock()
	return ch
}

func (hub *sessionHub) unsubscribe(ch chan struct{}) {
	hub.mu.Lock()
	delete(hub.subs, ch)
	hub.mu.Unlock()
}

func (hub *sessionHub) notify() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for ch := range hub.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// HandleSessionStream upgrades to a WebSocket and pushes the session view as
// JSON whenever the recording changes. The current view, if any, is sent
// first.
func (h *Handlers) HandleSessionStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		telemetry.LoggerWithCorr(r.Context()).Debug("stream upgrade failed", slog.Any("err", err), slog.String("component", "stream"))
		return
	}
	defer conn.Close()

	updates := h.hub.subscribe()
	defer h.hub.unsubscribe(updates)

	// The read side only services control frames; a read error means the
	// client went away.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		rec, id, err := h.current()
		if err != nil {
			return nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(h.view(r.Context(), rec, id))
	}

	if err := send(); err != nil {
		return
	}
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-updates:
			if err := send(); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-h.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		}
	}
}
