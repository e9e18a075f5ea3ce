package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/db"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/telemetry"
)

type importResponse struct {
	ID      string `json:"id"`
	Skipped int    `json:"skipped"`
}

type matchResponse struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Version   string         `json:"version"`
	Match     codec.Document `json:"match"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// HandleMatches lists stored matches (GET) or imports one (POST).
func (h *Handlers) HandleMatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listMatches(w, r)
	case http.MethodPost:
		h.importMatch(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// pageParam reads a listing page parameter. Missing, malformed and negative
// values fall back to def.
func pageParam(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (h *Handlers) listMatches(w http.ResponseWriter, r *http.Request) {
	f := db.ListFilter{
		TeamNumber: strings.TrimSpace(r.URL.Query().Get("team")),
		Limit:      pageParam(r, "limit", db.DefaultListLimit),
		Offset:     pageParam(r, "offset", 0),
	}
	list, err := h.store.ListMatches(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []db.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// importMatch stores pasted text or a JSON document. Text must carry a
// known version token; legacy blobs have no events to keep.
func (h *Handlers) importMatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		m       match.Match
		skipped int
		source  string
	)
	if isJSON(r) {
		m, skipped, err = codec.UnmarshalMatch(body)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", match.ErrValidation, err))
			return
		}
		source = db.SourceJSON
	} else {
		d, err := decodeText(r.Context(), strings.TrimSpace(string(body)), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if d.Legacy() {
			writeError(w, r, fmt.Errorf("%w: legacy text without a version token (team %q)", codec.ErrMalformedInput, d.Info.TeamNumber))
			return
		}
		m, skipped, source = d.Match, d.Skipped, db.SourceText
	}

	ctx, span := telemetry.StartSpan(r.Context(), "matches", "Import", telemetry.FormatAttr(source), telemetry.TeamAttr(m.TeamNumber))
	defer span.End()
	rec, err := h.store.SaveMatch(ctx, db.Record{Source: source, Match: m})
	if err != nil {
		telemetry.RecordError(span, err)
		writeError(w, r, err)
		return
	}
	span.SetAttributes(telemetry.MatchIDAttr(rec.ID))
	telemetry.LoggerWithCorr(r.Context()).Info("match imported",
		slog.String("id", rec.ID),
		slog.String("source", source),
		slog.Int("events", len(m.Events)),
		slog.Int("skipped", skipped),
		slog.String("component", "http"),
	)
	writeJSON(w, http.StatusCreated, importResponse{ID: rec.ID, Skipped: skipped})
}

// HandleMatchesDispatcher routes /matches/{id} and /matches/{id}/text.
func (h *Handlers) HandleMatchesDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/matches/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.getMatch(w, r, id)
		case http.MethodDelete:
			h.deleteMatch(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "text":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.getMatchText(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) getMatch(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.GetMatch(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{
		ID:        rec.ID,
		Source:    rec.Source,
		Version:   rec.Match.Version.String(),
		Match:     codec.ToDocument(rec.Match),
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) getMatchText(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.GetMatch(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(encodeText(r.Context(), rec.Match)))
}

func (h *Handlers) deleteMatch(w http.ResponseWriter, r *http.Request, id string) {
	n, err := h.store.DeleteMatches(r.Context(), []string{id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, r, db.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
