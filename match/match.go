// Package match defines the scouting event model: the two event kinds a scout
// records during a match (cycles and gate openings), the match metadata, and
// the append/undo operations that keep the event log consistent.
package match

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is returned (wrapped) when an event or scoring input violates
// the model's constraints.
var ErrValidation = errors.New("validation error")

const (
	// MaxAttempted is the most artifacts a single cycle can attempt.
	MaxAttempted = 3
)

// Phase names a segment of a structured match. The zero value means the
// event carries no phase (free-run recording).
type Phase string

const (
	PhaseNone     Phase = ""
	PhaseIdle     Phase = "idle"
	PhaseAuto     Phase = "auto"
	PhaseBuffer   Phase = "buffer"
	PhaseTeleop   Phase = "teleop"
	PhaseFinished Phase = "finished"
)

// Valid reports whether p is a known phase or absent.
func (p Phase) Valid() bool {
	switch p {
	case PhaseNone, PhaseIdle, PhaseAuto, PhaseBuffer, PhaseTeleop, PhaseFinished:
		return true
	default:
		return false
	}
}

// Kind discriminates the Event union.
type Kind string

const (
	KindCycle Kind = "cycle"
	KindGate  Kind = "gate"
)

// Event is one recorded action. Attempted and Scored are only meaningful for
// KindCycle.
type Event struct {
	Kind        Kind
	TimestampMS uint32
	Attempted   uint8
	Scored      uint8
	Phase       Phase
}

// NewCycle builds a validated cycle event.
func NewCycle(attempted, scored int, timestampMS uint32, phase Phase) (Event, error) {
	if attempted < 1 || attempted > MaxAttempted {
		return Event{}, fmt.Errorf("%w: attempted must be in 1..%d, got %d", ErrValidation, MaxAttempted, attempted)
	}
	if scored < 0 || scored > attempted {
		return Event{}, fmt.Errorf("%w: scored must be in 0..%d, got %d", ErrValidation, attempted, scored)
	}
	return Event{
		Kind:        KindCycle,
		TimestampMS: timestampMS,
		Attempted:   uint8(attempted),
		Scored:      uint8(scored),
		Phase:       phase,
	}, nil
}

// NewGate builds a gate event.
func NewGate(timestampMS uint32, phase Phase) Event {
	return Event{Kind: KindGate, TimestampMS: timestampMS, Phase: phase}
}

// Validate checks an already constructed event, e.g. one coming from an
// import path that bypassed the constructors.
func (e Event) Validate() error {
	if !e.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrValidation, e.Phase)
	}
	switch e.Kind {
	case KindCycle:
		_, err := NewCycle(int(e.Attempted), int(e.Scored), e.TimestampMS, e.Phase)
		return err
	case KindGate:
		if e.Attempted != 0 || e.Scored != 0 {
			return fmt.Errorf("%w: gate events carry no counts", ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrValidation, e.Kind)
	}
}

// FormatVersion identifies the text encoding generation a match came from.
type FormatVersion int

const (
	// V2 is the current format; start times are unix milliseconds.
	V2 FormatVersion = iota
	// V1 is the legacy format; start times are unix seconds.
	V1
)

// String returns the version token used on the wire.
func (v FormatVersion) String() string {
	switch v {
	case V1:
		return "hmadv1"
	case V2:
		return "hmadv2"
	default:
		return "unknown"
	}
}

// Metadata describes a match. Empty strings and nil pointers mean absent.
type Metadata struct {
	TeamNumber      string
	Notes           string
	StartTimeMS     *int64
	DurationSeconds *int64
	Version         FormatVersion
}

// Match is the metadata plus the ordered event log. Insertion order is the
// recording order.
type Match struct {
	Metadata
	Events []Event
}

// New returns an empty current-format match.
func New() *Match {
	return &Match{Metadata: Metadata{Version: V2}}
}

// AppendCycle validates and appends a cycle event.
func (m *Match) AppendCycle(attempted, scored int, timestampMS uint32, phase Phase) (Event, error) {
	ev, err := NewCycle(attempted, scored, timestampMS, phase)
	if err != nil {
		return Event{}, err
	}
	m.Events = append(m.Events, ev)
	return ev, nil
}

// AppendGate appends a gate event.
func (m *Match) AppendGate(timestampMS uint32, phase Phase) Event {
	ev := NewGate(timestampMS, phase)
	m.Events = append(m.Events, ev)
	return ev
}

// UndoLast removes the most recent event. It reports false when the log is
// empty.
func (m *Match) UndoLast() (Event, bool) {
	if len(m.Events) == 0 {
		return Event{}, false
	}
	last := m.Events[len(m.Events)-1]
	m.Events = m.Events[:len(m.Events)-1]
	return last, true
}

// Clone returns a deep copy that shares no memory with m.
func (m Match) Clone() Match {
	out := Match{Metadata: m.Metadata}
	if m.StartTimeMS != nil {
		v := *m.StartTimeMS
		out.StartTimeMS = &v
	}
	if m.DurationSeconds != nil {
		v := *m.DurationSeconds
		out.DurationSeconds = &v
	}
	if m.Events != nil {
		out.Events = make([]Event, len(m.Events))
		copy(out.Events, m.Events)
	}
	return out
}

// Totals returns the attempted and scored sums across all cycles.
func (m Match) Totals() (attempted, scored int) {
	for _, ev := range m.Events {
		switch ev.Kind {
		case KindCycle:
			attempted += int(ev.Attempted)
			scored += int(ev.Scored)
		case KindGate:
		}
	}
	return attempted, scored
}

// Int64 returns a pointer to v, for filling optional metadata fields.
func Int64(v int64) *int64 { return &v }

// ValidateTeamNumber rejects team numbers the text header cannot carry:
// surrounding whitespace, "/" and ";".
func ValidateTeamNumber(team string) error {
	if strings.TrimSpace(team) != team {
		return fmt.Errorf("%w: team number %q has surrounding whitespace", ErrValidation, team)
	}
	if strings.ContainsAny(team, "/;") {
		return fmt.Errorf("%w: team number %q must not contain \"/\" or \";\"", ErrValidation, team)
	}
	return nil
}
