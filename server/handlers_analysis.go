package server

import (
	"fmt"
	"net/http"

	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/scoring"
	"github.com/onnwee/hmad-scout/stats"
	"github.com/onnwee/hmad-scout/telemetry"
)

type scoreRequest struct {
	matchInput
	scoring.Input
}

type scoreResponse struct {
	scoring.Breakdown
	Input scoring.Input `json:"input"`
}

type statsRequest struct {
	Matches []matchInput `json:"matches"`
}

type statsResponse struct {
	stats.Report
	CycleTimes []float64 `json:"cycleTimes"`
}

// HandleScore scores a match. Motif and patterns are normalized before
// scoring and echoed back in their normalized form.
func (h *Handlers) HandleScore(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req scoreRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.resolve(r.Context(), req.matchInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := req.Input.Normalize()
	ctx, span := telemetry.StartSpan(r.Context(), "scoring", "Compute", telemetry.TeamAttr(m.TeamNumber))
	defer span.End()
	b, err := scoring.Compute(m, in)
	if err != nil {
		telemetry.RecordError(span, err)
		writeError(w, r.WithContext(ctx), err)
		return
	}
	telemetry.SetSpanSuccess(span)
	writeJSON(w, http.StatusOK, scoreResponse{Breakdown: b, Input: in})
}

// HandleStats aggregates statistics over one or more matches.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req statsRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Matches) == 0 {
		writeError(w, r, fmt.Errorf("%w: at least one match is required", match.ErrValidation))
		return
	}
	matches := make([]match.Match, 0, len(req.Matches))
	for i, in := range req.Matches {
		m, err := h.resolve(r.Context(), in)
		if err != nil {
			writeError(w, r, fmt.Errorf("matches[%d]: %w", i, err))
			return
		}
		matches = append(matches, m)
	}
	_, span := telemetry.StartSpan(r.Context(), "stats", "Summarize")
	defer span.End()
	writeJSON(w, http.StatusOK, statsResponse{
		Report:     stats.Summarize(matches...),
		CycleTimes: stats.CycleTimes(matches...),
	})
}
