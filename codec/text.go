// Package codec converts matches to and from their shareable encodings: the
// line-oriented text form pasted between scouts and the JSON document used
// for file export and storage.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/onnwee/hmad-scout/match"
)

// ErrMalformedInput is returned when text has no header/body separator.
var ErrMalformedInput = errors.New("malformed match text: missing \";;\" separator")

const (
	headerSeparator  = ";;"
	segmentSeparator = ";"
	fieldSeparator   = "/"

	// LegacyTextVersion tags text whose header carries no known version token.
	LegacyTextVersion = "text_v1"

	emptyNotes = " "
	noTeam     = "0"
)

var (
	timeRe  = regexp.MustCompile(`^(\d+):(\d{2})(?:\.(\d+))?$`)
	gateRe  = regexp.MustCompile(`^gate\s+at\s+(\S+)$`)
	cycleRe = regexp.MustCompile(`^(\d+)\s*/\s*(\d+)\s+at\s+(\S+)$`)
)

// Info describes text that decoded without a recognised version token. The
// match body of such text is not interpreted. Legacy exports led the header
// with the team number, so TeamNumber holds the first header token.
type Info struct {
	Type       string `json:"type" yaml:"type"`
	Version    string `json:"version" yaml:"version"`
	TeamNumber string `json:"teamNumber" yaml:"teamNumber"`
}

// Decoded is the result of decoding match text.
type Decoded struct {
	Match match.Match
	// Info is set for legacy pass-through text; Match then has no events.
	Info *Info
	// Skipped counts body segments that could not be interpreted.
	Skipped int
}

// Legacy reports whether the text was a pass-through legacy blob.
func (d *Decoded) Legacy() bool { return d.Info != nil }

// FormatTime renders milliseconds as M:SS, flooring to whole seconds.
// Negative input renders as 0:00.
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// formatTimestamp is FormatTime plus a .mmm suffix when the millisecond part
// is non-zero, so encoded timestamps survive decoding exactly.
func formatTimestamp(ms uint32) string {
	base := FormatTime(int64(ms))
	if frac := ms % 1000; frac != 0 {
		return fmt.Sprintf("%s.%03d", base, frac)
	}
	return base
}

// ParseTime parses M:SS with an optional fractional second part and returns
// milliseconds, rounding the fraction to the nearest millisecond.
func ParseTime(s string) (int64, error) {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	minutes, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", s, err)
	}
	if minutes > math.MaxUint32/60000 {
		return 0, fmt.Errorf("minutes out of range in %q", s)
	}
	seconds, _ := strconv.ParseInt(m[2], 10, 64)
	if seconds >= 60 {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}
	ms := (minutes*60 + seconds) * 1000
	if frac := m[3]; frac != "" {
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fraction in %q: %w", s, err)
		}
		ms += int64(math.Round(f * 1000))
	}
	return ms, nil
}

// Encode renders m in the current text format. It always emits hmadv2.
func Encode(m match.Match) string {
	var b strings.Builder

	team := m.TeamNumber
	if team == "" {
		team = noTeam
	}
	notes := m.Notes
	if notes == "" {
		notes = emptyNotes
	}
	b.WriteString(match.V2.String())
	b.WriteString(fieldSeparator)
	b.WriteString(team)
	b.WriteString(fieldSeparator)
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(notes)))
	b.WriteString(fieldSeparator)
	if m.StartTimeMS != nil {
		b.WriteString(strconv.FormatInt(*m.StartTimeMS, 10))
	}
	b.WriteString(fieldSeparator)
	if m.DurationSeconds != nil {
		b.WriteString(strconv.FormatInt(*m.DurationSeconds, 10))
	}
	b.WriteString(headerSeparator)
	b.WriteString(" ")
	b.WriteString(FormatTime(0))
	b.WriteString(segmentSeparator)

	for _, ev := range m.Events {
		b.WriteString(" ")
		switch ev.Kind {
		case match.KindGate:
			b.WriteString("gate at ")
		case match.KindCycle:
			fmt.Fprintf(&b, "%d/%d at ", ev.Scored, ev.Attempted)
		}
		b.WriteString(formatTimestamp(ev.TimestampMS))
		b.WriteString(segmentSeparator)
	}
	return b.String()
}

// Decode parses match text. The only error is ErrMalformedInput; anything
// else that cannot be understood is skipped and counted.
func Decode(text string) (*Decoded, error) {
	head, body, ok := strings.Cut(strings.TrimSpace(text), headerSeparator)
	if !ok {
		return nil, ErrMalformedInput
	}

	fields := strings.Split(strings.TrimSpace(head), fieldSeparator)
	var version match.FormatVersion
	switch strings.TrimSpace(fields[0]) {
	case match.V2.String():
		version = match.V2
	case match.V1.String():
		version = match.V1
	default:
		return &Decoded{
			Match: match.Match{Metadata: match.Metadata{Version: match.V1}},
			Info:  &Info{Type: "info", Version: LegacyTextVersion, TeamNumber: strings.TrimSpace(fields[0])},
		}, nil
	}

	out := &Decoded{Match: match.Match{Metadata: decodeHeader(version, fields)}}
	for _, seg := range strings.Split(body, segmentSeparator) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		ev, ok := decodeSegment(seg)
		if !ok {
			out.Skipped++
			continue
		}
		// Timestamp zero is the body start marker; events at exactly 0ms are
		// indistinguishable from it and are dropped.
		if ev.TimestampMS == 0 {
			continue
		}
		out.Match.Events = append(out.Match.Events, ev)
	}
	if out.Skipped > 0 {
		slog.Debug("skipped unreadable match segments", slog.String("component", "codec"), slog.Int("skipped", out.Skipped))
	}
	return out, nil
}

// DecodeLenient never fails: text without a separator is reported as a
// legacy pass-through with no events.
func DecodeLenient(text string) *Decoded {
	d, err := Decode(text)
	if err == nil {
		return d
	}
	return &Decoded{
		Match: match.Match{Metadata: match.Metadata{Version: match.V1}},
		Info:  &Info{Type: "info", Version: LegacyTextVersion},
	}
}

// decodeHeader reads version/team/notes/start/duration. Notes are base64 and
// may themselves contain "/", so team is read from the left and start and
// duration from the right. Short v1 headers are version/start/notes.
func decodeHeader(version match.FormatVersion, fields []string) match.Metadata {
	md := match.Metadata{Version: version}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var team, notes, start, duration string
	switch {
	case len(fields) >= 5:
		team = fields[1]
		notes = strings.Join(fields[2:len(fields)-2], fieldSeparator)
		start = fields[len(fields)-2]
		duration = fields[len(fields)-1]
	case version == match.V1:
		if len(fields) > 1 {
			start = fields[1]
		}
		if len(fields) > 2 {
			notes = strings.Join(fields[2:], fieldSeparator)
		}
	default:
		if len(fields) > 1 {
			team = fields[1]
		}
		if len(fields) > 2 {
			notes = fields[2]
		}
	}

	if team != noTeam {
		md.TeamNumber = team
	}
	md.Notes = decodeNotes(notes)
	if v, err := strconv.ParseInt(start, 10, 64); err == nil {
		if version == match.V1 {
			v *= 1000
		}
		md.StartTimeMS = &v
	}
	if v, err := strconv.ParseInt(duration, 10, 64); err == nil {
		md.DurationSeconds = &v
	}
	return md
}

func decodeNotes(s string) string {
	if s == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		slog.Debug("notes are not valid base64; dropping", slog.String("component", "codec"), slog.Any("err", err))
		return ""
	}
	if string(raw) == emptyNotes {
		return ""
	}
	return string(raw)
}

// decodeSegment interprets one body segment. A bare time is accepted only as
// the zero start marker.
func decodeSegment(seg string) (match.Event, bool) {
	if ms, err := ParseTime(seg); err == nil {
		if ms == 0 {
			return match.Event{}, true
		}
		return match.Event{}, false
	}

	if m := gateRe.FindStringSubmatch(seg); m != nil {
		ts, ok := parseTimestamp(m[1])
		if !ok {
			return match.Event{}, false
		}
		return match.NewGate(ts, match.PhaseNone), true
	}

	if m := cycleRe.FindStringSubmatch(seg); m != nil {
		scored, err1 := strconv.Atoi(m[1])
		attempted, err2 := strconv.Atoi(m[2])
		ts, ok := parseTimestamp(m[3])
		if err1 != nil || err2 != nil || !ok {
			return match.Event{}, false
		}
		ev, err := match.NewCycle(attempted, scored, ts, match.PhaseNone)
		if err != nil {
			return match.Event{}, false
		}
		return ev, true
	}
	return match.Event{}, false
}

func parseTimestamp(s string) (uint32, bool) {
	ms, err := ParseTime(s)
	if err != nil || ms < 0 || ms > math.MaxUint32 {
		return 0, false
	}
	return uint32(ms), true
}
