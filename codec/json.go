package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/onnwee/hmad-scout/match"
)

// Document is the JSON (and YAML) shape of a match used by file export,
// import, and storage.
type Document struct {
	StartTime  *int64          `json:"startTime" yaml:"startTime"`
	Duration   *int64          `json:"duration" yaml:"duration"`
	TeamNumber TeamNumber      `json:"teamNumber" yaml:"teamNumber"`
	Notes      string          `json:"notes" yaml:"notes"`
	Events     []EventDocument `json:"events" yaml:"events"`
}

// EventDocument is one entry of Document.Events. Total and Scored are only
// present for cycles.
type EventDocument struct {
	Type      string `json:"type" yaml:"type"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	Total     *int   `json:"total,omitempty" yaml:"total,omitempty"`
	Scored    *int   `json:"scored,omitempty" yaml:"scored,omitempty"`
	Phase     string `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// TeamNumber accepts both JSON strings and numbers; older exports wrote team
// numbers as integers.
type TeamNumber string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TeamNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TeamNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("team number: %w", err)
	}
	*t = TeamNumber(n.String())
	return nil
}

// ToDocument maps a match onto its JSON document.
func ToDocument(m match.Match) Document {
	doc := Document{
		TeamNumber: TeamNumber(m.TeamNumber),
		Notes:      m.Notes,
		Events:     make([]EventDocument, 0, len(m.Events)),
	}
	if m.StartTimeMS != nil {
		v := *m.StartTimeMS
		doc.StartTime = &v
	}
	if m.DurationSeconds != nil {
		v := *m.DurationSeconds
		doc.Duration = &v
	}
	for _, ev := range m.Events {
		ed := EventDocument{Timestamp: int64(ev.TimestampMS), Phase: string(ev.Phase)}
		switch ev.Kind {
		case match.KindCycle:
			total, scored := int(ev.Attempted), int(ev.Scored)
			ed.Type = string(match.KindCycle)
			ed.Total = &total
			ed.Scored = &scored
		case match.KindGate:
			ed.Type = string(match.KindGate)
		}
		doc.Events = append(doc.Events, ed)
	}
	return doc
}

// FromDocument maps a document back onto a match. Events that do not
// validate are skipped and counted; a team number the text format cannot
// carry is an ErrValidation error.
func FromDocument(doc Document) (match.Match, int, error) {
	if err := match.ValidateTeamNumber(string(doc.TeamNumber)); err != nil {
		return match.Match{}, 0, err
	}
	m := match.Match{Metadata: match.Metadata{
		TeamNumber: string(doc.TeamNumber),
		Notes:      doc.Notes,
		Version:    match.V2,
	}}
	if doc.StartTime != nil {
		m.StartTimeMS = match.Int64(*doc.StartTime)
	}
	if doc.Duration != nil {
		m.DurationSeconds = match.Int64(*doc.Duration)
	}

	skipped := 0
	for _, ed := range doc.Events {
		ev, err := eventFromDocument(ed)
		if err != nil {
			skipped++
			continue
		}
		m.Events = append(m.Events, ev)
	}
	return m, skipped, nil
}

func eventFromDocument(ed EventDocument) (match.Event, error) {
	if ed.Timestamp < 0 || ed.Timestamp > math.MaxUint32 {
		return match.Event{}, fmt.Errorf("%w: timestamp %d out of range", match.ErrValidation, ed.Timestamp)
	}
	phase := match.Phase(ed.Phase)
	if !phase.Valid() {
		return match.Event{}, fmt.Errorf("%w: unknown phase %q", match.ErrValidation, ed.Phase)
	}
	ts := uint32(ed.Timestamp)
	switch match.Kind(ed.Type) {
	case match.KindGate:
		return match.NewGate(ts, phase), nil
	case match.KindCycle:
		if ed.Total == nil || ed.Scored == nil {
			return match.Event{}, fmt.Errorf("%w: cycle at %d missing counts", match.ErrValidation, ed.Timestamp)
		}
		return match.NewCycle(*ed.Total, *ed.Scored, ts, phase)
	default:
		return match.Event{}, fmt.Errorf("%w: unknown event type %q", match.ErrValidation, ed.Type)
	}
}

// MarshalMatch renders m as indented JSON.
func MarshalMatch(m match.Match) ([]byte, error) {
	return json.MarshalIndent(ToDocument(m), "", "  ")
}

// UnmarshalMatch parses a JSON document. A document that is not valid JSON
// is an error; individual bad events are skipped and counted.
func UnmarshalMatch(data []byte) (match.Match, int, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return match.Match{}, 0, fmt.Errorf("decode match json: %w", err)
	}
	return FromDocument(doc)
}

// String returns the team number text.
func (t TeamNumber) String() string { return string(t) }
