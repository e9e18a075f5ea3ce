// Package scoring computes competition points for a recorded match.
package scoring

import (
	"fmt"
	"strings"

	"github.com/onnwee/hmad-scout/match"
)

const (
	ArtifactPoints   = 3
	MotifMatchPoints = 2
	LeavePoints      = 3
	PartialParkScore = 5
	FullParkScore    = 10

	// MotifLength is the length of a motif; the scoring target repeats it
	// MotifRepeats times.
	MotifLength  = 3
	MotifRepeats = 3
	PatternSlots = MotifLength * MotifRepeats
)

// Park is the end-of-match parking outcome.
type Park string

const (
	ParkNone    Park = "none"
	ParkPartial Park = "partial"
	ParkFull    Park = "full"
)

// ParsePark accepts none/partial/full in any case; empty means none.
func ParsePark(s string) (Park, error) {
	switch Park(strings.ToLower(strings.TrimSpace(s))) {
	case "", ParkNone:
		return ParkNone, nil
	case ParkPartial:
		return ParkPartial, nil
	case ParkFull:
		return ParkFull, nil
	default:
		return ParkNone, fmt.Errorf("%w: unknown park value %q", match.ErrValidation, s)
	}
}

// Points returns the park bonus.
func (p Park) Points() int {
	switch p {
	case ParkPartial:
		return PartialParkScore
	case ParkFull:
		return FullParkScore
	default:
		return 0
	}
}

// Input holds the match fields that are scored alongside the event log.
// Patterns and the motif must already be normalized.
type Input struct {
	Motif         string `json:"motif" yaml:"motif"`
	AutoPattern   string `json:"autoPattern" yaml:"autoPattern"`
	TeleopPattern string `json:"teleopPattern" yaml:"teleopPattern"`
	AutoLeave     bool   `json:"autoLeave" yaml:"autoLeave"`
	TeleopPark    Park   `json:"teleopPark" yaml:"teleopPark"`
}

// MotifPoints splits motif points by period.
type MotifPoints struct {
	Auto   int `json:"auto" yaml:"auto"`
	Teleop int `json:"teleop" yaml:"teleop"`
	Total  int `json:"total" yaml:"total"`
}

// Breakdown is the derived score of a match.
type Breakdown struct {
	ArtifactPoints int         `json:"artifactPoints" yaml:"artifactPoints"`
	MotifPoints    MotifPoints `json:"motifPoints" yaml:"motifPoints"`
	LeavePoints    int         `json:"leavePoints" yaml:"leavePoints"`
	ParkPoints     int         `json:"parkPoints" yaml:"parkPoints"`
	Total          int         `json:"total" yaml:"total"`
}

// NormalizePattern upper-cases s, drops everything but P and G, and keeps at
// most PatternSlots characters. Apply it where patterns enter the system.
func NormalizePattern(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if b.Len() == PatternSlots {
			break
		}
		if r == 'P' || r == 'G' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize returns a copy of in with its motif and patterns normalized.
func (in Input) Normalize() Input {
	in.Motif = NormalizePattern(in.Motif)
	in.AutoPattern = NormalizePattern(in.AutoPattern)
	in.TeleopPattern = NormalizePattern(in.TeleopPattern)
	return in
}

// Target expands a motif into the full pattern it is compared against.
func Target(motif string) string {
	return strings.Repeat(motif, MotifRepeats)
}

// MotifMatches counts the positions where pattern agrees with target.
func MotifMatches(target, pattern string) int {
	n := min(len(pattern), len(target), PatternSlots)
	matches := 0
	for i := 0; i < n; i++ {
		if pattern[i] == target[i] {
			matches++
		}
	}
	return matches
}

func validatePattern(field, s string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("%w: %s longer than %d", match.ErrValidation, field, maxLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] != 'P' && s[i] != 'G' {
			return fmt.Errorf("%w: %s contains %q, only P and G are allowed", match.ErrValidation, field, s[i])
		}
	}
	return nil
}

// Compute scores m. It rejects motifs and patterns that were not
// normalized.
func Compute(m match.Match, in Input) (Breakdown, error) {
	if err := validatePattern("motif", in.Motif, MotifLength); err != nil {
		return Breakdown{}, err
	}
	if in.Motif != "" && len(in.Motif) != MotifLength {
		return Breakdown{}, fmt.Errorf("%w: motif must be %d characters", match.ErrValidation, MotifLength)
	}
	if err := validatePattern("auto pattern", in.AutoPattern, PatternSlots); err != nil {
		return Breakdown{}, err
	}
	if err := validatePattern("teleop pattern", in.TeleopPattern, PatternSlots); err != nil {
		return Breakdown{}, err
	}
	park, err := ParsePark(string(in.TeleopPark))
	if err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	_, scored := m.Totals()
	b.ArtifactPoints = scored * ArtifactPoints

	if in.Motif != "" {
		target := Target(in.Motif)
		b.MotifPoints.Auto = MotifMatches(target, in.AutoPattern) * MotifMatchPoints
		b.MotifPoints.Teleop = MotifMatches(target, in.TeleopPattern) * MotifMatchPoints
		b.MotifPoints.Total = b.MotifPoints.Auto + b.MotifPoints.Teleop
	}
	if in.AutoLeave {
		b.LeavePoints = LeavePoints
	}
	b.ParkPoints = park.Points()
	b.Total = b.ArtifactPoints + b.MotifPoints.Total + b.LeavePoints + b.ParkPoints
	return b, nil
}
