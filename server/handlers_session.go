package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/session"
	"github.com/onnwee/hmad-scout/telemetry"
)

// errNoSession is returned by session endpoints before any match was started.
var errNoSession = errors.New("no recording session")

type startRequest struct {
	TeamNumber   codec.TeamNumber `json:"teamNumber"`
	Notes        string           `json:"notes"`
	Mode         string           `json:"mode"`
	TimerSeconds *int             `json:"timerSeconds"`
}

type cycleRequest struct {
	Attempted int `json:"attempted"`
	Scored    int `json:"scored"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type sessionView struct {
	Mode       string         `json:"mode"`
	Phase      string         `json:"phase"`
	ElapsedMS  int64          `json:"elapsedMs"`
	TimerMS    int64          `json:"timerMs,omitempty"`
	Running    bool           `json:"running"`
	Stopped    bool           `json:"stopped"`
	StopReason string         `json:"stopReason,omitempty"`
	MatchID    string         `json:"matchId,omitempty"`
	Match      codec.Document `json:"match"`
	Text       string         `json:"text"`
}

type eventResponse struct {
	Event   *codec.EventDocument `json:"event"`
	Session sessionView          `json:"session"`
}

func eventDocument(ev match.Event) *codec.EventDocument {
	doc := codec.ToDocument(match.Match{Events: []match.Event{ev}})
	return &doc.Events[0]
}

// current returns the active recorder and the id it was stored under, if
// any. Callers must not hold sessMu while calling into the recorder: finish
// hooks take it.
func (h *Handlers) current() (*session.Recorder, string, error) {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	if h.sess == nil {
		return nil, "", errNoSession
	}
	return h.sess, h.sessID, nil
}

func (h *Handlers) view(ctx context.Context, rec *session.Recorder, id string) sessionView {
	st := rec.State()
	m := rec.Snapshot()
	return sessionView{
		Mode:       st.Mode.String(),
		Phase:      string(st.Phase),
		ElapsedMS:  st.ElapsedMS(),
		TimerMS:    st.Timer.Milliseconds(),
		Running:    st.Running,
		Stopped:    st.Stopped,
		StopReason: string(st.StopReason),
		MatchID:    id,
		Match:      codec.ToDocument(m),
		Text:       encodeText(ctx, m),
	}
}

// persist stores the finished match of rec. Only the recorder that is still
// current records its id.
func (h *Handlers) persist(rec *session.Recorder, m match.Match) {
	h.sessMu.Lock()
	id := ""
	if h.sess == rec {
		id = h.sessID
	}
	h.sessMu.Unlock()

	ctx, span := telemetry.StartSpan(h.ctx, "session", "Persist", telemetry.TeamAttr(m.TeamNumber))
	defer span.End()
	saved, err := h.store.SaveMatch(ctx, db.Record{ID: id, Source: db.SourceSession, Match: m})
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("failed to store recorded match", slog.Any("err", err), slog.String("component", "session"))
		return
	}
	span.SetAttributes(telemetry.MatchIDAttr(saved.ID))

	h.sessMu.Lock()
	if h.sess == rec {
		h.sessID = saved.ID
	}
	h.sessMu.Unlock()
	h.hub.notify()
}

// resave writes edits made after the match finished back to the store.
func (h *Handlers) resave(rec *session.Recorder) {
	if st := rec.State(); !st.Stopped {
		return
	}
	if _, id, err := h.current(); err == nil && id != "" {
		h.persist(rec, rec.Snapshot())
	}
}

// HandleSessionStart starts a new recording. A previous session that has
// stopped is replaced; a running one is a conflict.
func (h *Handlers) HandleSessionStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req startRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	mode := h.deps.Mode
	if req.Mode != "" {
		m, err := clock.ParseMode(strings.ToLower(req.Mode))
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", match.ErrValidation, err))
			return
		}
		mode = m
	}
	timer := h.deps.Timer
	if req.TimerSeconds != nil {
		if *req.TimerSeconds < 0 {
			writeError(w, r, fmt.Errorf("%w: timerSeconds must not be negative", match.ErrValidation))
			return
		}
		timer = time.Duration(*req.TimerSeconds) * time.Second
	}

	team := strings.TrimSpace(req.TeamNumber.String())
	if err := match.ValidateTeamNumber(team); err != nil {
		writeError(w, r, err)
		return
	}

	rec := session.New(session.Options{
		Mode:       mode,
		Timer:      timer,
		TeamNumber: team,
		Notes:      req.Notes,
		Now:        h.deps.Now,
	})
	rec.OnFinish(func(m match.Match, _ clock.State) { h.persist(rec, m) })
	rec.OnChange(func(clock.State) { h.hub.notify() })

	h.sessMu.Lock()
	if h.sess != nil && h.sess.State().Running {
		h.sessMu.Unlock()
		writeError(w, r, errSessionActive)
		return
	}
	// Start under sessMu so a concurrent start sees this recorder running.
	if err := rec.Start(); err != nil {
		h.sessMu.Unlock()
		writeError(w, r, err)
		return
	}
	h.sess, h.sessID = rec, ""
	h.sessMu.Unlock()
	go rec.Run(h.ctx, h.deps.TickInterval)
	h.hub.notify()

	telemetry.LoggerWithCorr(r.Context()).Info("session started", slog.String("mode", mode.String()), slog.String("component", "session"))
	writeJSON(w, http.StatusCreated, h.view(r.Context(), rec, ""))
}

// HandleSessionCycle records a cycle.
func (h *Handlers) HandleSessionCycle(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req cycleRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.recordEvent(w, r, func(rec *session.Recorder) (match.Event, error) {
		return rec.Cycle(req.Attempted, req.Scored)
	})
}

// HandleSessionGate records a gate event.
func (h *Handlers) HandleSessionGate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h.recordEvent(w, r, func(rec *session.Recorder) (match.Event, error) {
		return rec.Gate()
	})
}

func (h *Handlers) recordEvent(w http.ResponseWriter, r *http.Request, fn func(*session.Recorder) (match.Event, error)) {
	rec, _, err := h.current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := fn(rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.hub.notify()
	_, id, _ := h.current()
	writeJSON(w, http.StatusCreated, eventResponse{Event: eventDocument(ev), Session: h.view(r.Context(), rec, id)})
}

// HandleSessionUndo removes the most recent event. It responds 200 with a nil
// event when the log is already empty.
func (h *Handlers) HandleSessionUndo(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	rec, _, err := h.current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := eventResponse{}
	if ev, ok := rec.Undo(); ok {
		resp.Event = eventDocument(ev)
		h.resave(rec)
		h.hub.notify()
	}
	_, id, _ := h.current()
	resp.Session = h.view(r.Context(), rec, id)
	writeJSON(w, http.StatusOK, resp)
}

// HandleSessionStop ends the current match and stores it.
func (h *Handlers) HandleSessionStop(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	rec, _, err := h.current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec.Stop()
	h.hub.notify()
	_, id, _ := h.current()
	writeJSON(w, http.StatusOK, h.view(r.Context(), rec, id))
}

// HandleSession reports the current session.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	rec, id, err := h.current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r.Context(), rec, id))
}

// HandleSessionNotes replaces the notes of the current match, stored or not.
func (h *Handlers) HandleSessionNotes(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	var req notesRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, _, err := h.current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec.SetNotes(req.Notes)
	h.resave(rec)
	h.hub.notify()
	_, id, _ := h.current()
	writeJSON(w, http.StatusOK, h.view(r.Context(), rec, id))
}
