// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/session"
	"github.com/onnwee/hmad-scout/telemetry"
)

const (
	// maxBodyBytes caps request bodies; a full match export is a few KB.
	maxBodyBytes = 1 << 20
)

// errSessionActive is returned when a new session is started while another
// one is still recording.
var errSessionActive = errors.New("a match is already recording")

// Deps are the collaborators the handlers need.
type Deps struct {
	Store        db.Store
	Mode         clock.Mode
	Timer        time.Duration
	TickInterval time.Duration
	// Now overrides the wall clock for recording sessions (tests).
	Now func() time.Time
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx   context.Context
	store db.Store
	deps  Deps

	sessMu sync.Mutex
	sess   *session.Recorder
	sessID string // stored id once the current session finished

	hub *sessionHub
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// ctx bounds the background tick loops of recording sessions.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	if deps.Store == nil {
		deps.Store = db.NewMemoryStore()
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = clock.DefaultTickInterval
	}
	return &Handlers{ctx: ctx, store: deps.Store, deps: deps, hub: newSessionHub()}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, match.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, codec.ErrMalformedInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, db.ErrNotFound), errors.Is(err, errNoSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotRecording),
		errors.Is(err, clock.ErrAlreadyStarted),
		errors.Is(err, errSessionActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := telemetry.LoggerWithCorr(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err), slog.String("component", "http"))
	} else {
		logger.Debug("request rejected", slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("err", err), slog.String("component", "http"))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// readJSON decodes the request body into v. Malformed JSON is a validation
// error.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", match.ErrValidation)
		}
		return fmt.Errorf("%w: invalid json: %v", match.ErrValidation, err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", match.ErrValidation, err)
	}
	return data, nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}
