package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/onnwee/hmad-scout/codec"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/telemetry"
)

type decodeResponse struct {
	Match   codec.Document `json:"match"`
	Version string         `json:"version"`
	Info    *codec.Info    `json:"info,omitempty"`
	Skipped int            `json:"skipped"`
}

type encodeResponse struct {
	Text string `json:"text"`
}

// matchInput names a match in a request: pasted text, a JSON document, or a
// stored match id. Exactly one must be set.
type matchInput struct {
	ID    string          `json:"id,omitempty"`
	Text  string          `json:"text,omitempty"`
	Match *codec.Document `json:"match,omitempty"`
}

// decodeText runs the text decoder with metrics and a span around it.
func decodeText(ctx context.Context, text string, lenient bool) (*codec.Decoded, error) {
	_, span := telemetry.StartSpan(ctx, "codec", "Decode", telemetry.FormatAttr("text"))
	defer span.End()

	var (
		d   *codec.Decoded
		err error
	)
	telemetry.TimeFunc(telemetry.DecodeDuration, func() {
		if lenient {
			d = codec.DecodeLenient(text)
			return
		}
		d, err = codec.Decode(text)
	})
	switch {
	case err != nil:
		telemetry.RecordDecode(telemetry.DecodeMalformed, 0)
		telemetry.RecordError(span, err)
		return nil, err
	case d.Legacy():
		telemetry.RecordDecode(telemetry.DecodeLegacy, d.Skipped)
	default:
		telemetry.RecordDecode(telemetry.DecodeOK, d.Skipped)
	}
	span.SetAttributes(telemetry.EventCountAttr(len(d.Match.Events)), telemetry.SkippedAttr(d.Skipped))
	return d, nil
}

func encodeText(ctx context.Context, m match.Match) string {
	_, span := telemetry.StartSpan(ctx, "codec", "Encode", telemetry.EventCountAttr(len(m.Events)))
	defer span.End()
	var text string
	telemetry.TimeFunc(telemetry.EncodeDuration, func() { text = codec.Encode(m) })
	return text
}

// resolve turns a matchInput into a match.
func (h *Handlers) resolve(ctx context.Context, in matchInput) (match.Match, error) {
	set := 0
	for _, ok := range []bool{in.ID != "", in.Text != "", in.Match != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return match.Match{}, fmt.Errorf("%w: exactly one of id, text or match is required", match.ErrValidation)
	}
	switch {
	case in.ID != "":
		rec, err := h.store.GetMatch(ctx, in.ID)
		if err != nil {
			return match.Match{}, err
		}
		return rec.Match, nil
	case in.Text != "":
		d, err := decodeText(ctx, in.Text, false)
		if err != nil {
			return match.Match{}, err
		}
		return d.Match, nil
	default:
		m, _, err := codec.FromDocument(*in.Match)
		return m, err
	}
}

// HandleDecode decodes match text. The body is either the raw text or a JSON
// object {"text": "..."}. With ?lenient=1 text without a separator decodes
// as a legacy pass-through instead of failing.
func (h *Handlers) HandleDecode(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	text, err := requestText(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lenient := r.URL.Query().Get("lenient") == "1" || r.URL.Query().Get("lenient") == "true"
	d, err := decodeText(r.Context(), text, lenient)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decodeResponse{
		Match:   codec.ToDocument(d.Match),
		Version: d.Match.Version.String(),
		Info:    d.Info,
		Skipped: d.Skipped,
	})
}

// HandleEncode renders a match document, or a stored match, as text.
func (h *Handlers) HandleEncode(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var in matchInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.resolve(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeResponse{Text: encodeText(r.Context(), m)})
}

// requestText reads match text from a raw body or a {"text": ...} object.
func requestText(w http.ResponseWriter, r *http.Request) (string, error) {
	if isJSON(r) {
		var in struct {
			Text string `json:"text"`
		}
		if err := readJSON(w, r, &in); err != nil {
			return "", err
		}
		return in.Text, nil
	}
	body, err := readBody(w, r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

