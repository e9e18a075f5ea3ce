// Package stats derives cycle times, accuracy and distribution figures from
// recorded matches. Every function is a pure read over its input.
package stats

import (
	"math"

	"github.com/onnwee/hmad-scout/match"
)

// Summary is the basic description of a series. All fields are zero for an
// empty series.
type Summary struct {
	Avg    float64 `json:"avg" yaml:"avg"`
	StdDev float64 `json:"stdDev" yaml:"stdDev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// CycleTimes returns the time in seconds leading up to each cycle. The
// baseline starts at zero for every match and moves to each event in turn,
// so a gate resets it. Non-positive deltas are dropped.
func CycleTimes(matches ...match.Match) []float64 {
	out := []float64{}
	for _, m := range matches {
		var prev int64
		for _, ev := range m.Events {
			ts := int64(ev.TimestampMS)
			if ev.Kind == match.KindCycle {
				if delta := ts - prev; delta > 0 {
					out = append(out, float64(delta)/1000)
				}
			}
			prev = ts
		}
	}
	return out
}

// BasicStats summarizes nums using the population standard deviation.
func BasicStats(nums []float64) Summary {
	if len(nums) == 0 {
		return Summary{}
	}
	s := Summary{Min: nums[0], Max: nums[0]}
	var sum float64
	for _, n := range nums {
		sum += n
		s.Min = math.Min(s.Min, n)
		s.Max = math.Max(s.Max, n)
	}
	s.Avg = sum / float64(len(nums))
	var sq float64
	for _, n := range nums {
		d := n - s.Avg
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(nums)))
	return s
}

// Accuracy is the share of attempted artifacts scored in ev, as a
// percentage. Gates and empty cycles report 0.
func Accuracy(ev match.Event) float64 {
	if ev.Kind != match.KindCycle || ev.Attempted == 0 {
		return 0
	}
	return float64(ev.Scored) / float64(ev.Attempted) * 100
}

// PhaseCounts holds per-phase cycle counts. Cycles recorded without a phase
// land in Untagged.
type PhaseCounts struct {
	Auto     int `json:"auto" yaml:"auto"`
	Buffer   int `json:"buffer" yaml:"buffer"`
	Teleop   int `json:"teleop" yaml:"teleop"`
	Untagged int `json:"untagged" yaml:"untagged"`
}

// Report aggregates one or more matches. Accuracy is Scored/Attempted over
// all cycles as a percentage; Distribution[n] counts cycles that scored
// exactly n artifacts.
type Report struct {
	Matches       int                         `json:"matches" yaml:"matches"`
	Cycles        int                         `json:"cycles" yaml:"cycles"`
	Gates         int                         `json:"gates" yaml:"gates"`
	Attempted     int                         `json:"attempted" yaml:"attempted"`
	Scored        int                         `json:"scored" yaml:"scored"`
	Accuracy      float64                     `json:"accuracy" yaml:"accuracy"`
	CycleTime     Summary                     `json:"cycleTime" yaml:"cycleTime"`
	CycleAccuracy Summary                     `json:"cycleAccuracy" yaml:"cycleAccuracy"`
	Distribution  [match.MaxAttempted + 1]int `json:"distribution" yaml:"distribution"`
	ByPhase       PhaseCounts                 `json:"byPhase" yaml:"byPhase"`
}

// Summarize builds a Report over matches.
func Summarize(matches ...match.Match) Report {
	r := Report{Matches: len(matches)}
	var accuracies []float64
	for _, m := range matches {
		for _, ev := range m.Events {
			switch ev.Kind {
			case match.KindGate:
				r.Gates++
			case match.KindCycle:
				r.Cycles++
				r.Attempted += int(ev.Attempted)
				r.Scored += int(ev.Scored)
				accuracies = append(accuracies, Accuracy(ev))
				if int(ev.Scored) < len(r.Distribution) {
					r.Distribution[ev.Scored]++
				}
				switch ev.Phase {
				case match.PhaseAuto:
					r.ByPhase.Auto++
				case match.PhaseBuffer:
					r.ByPhase.Buffer++
				case match.PhaseTeleop:
					r.ByPhase.Teleop++
				default:
					r.ByPhase.Untagged++
				}
			}
		}
	}
	if r.Attempted > 0 {
		r.Accuracy = float64(r.Scored) / float64(r.Attempted) * 100
	}
	r.CycleTime = BasicStats(CycleTimes(matches...))
	r.CycleAccuracy = BasicStats(accuracies)
	return r
}
