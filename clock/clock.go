// Package clock implements the match phase clock: a polled state machine that
// maps elapsed match time onto structured phases (auto, buffer, teleop) or a
// free-running timer with an optional auto-stop.
package clock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/hmad-scout/match"
)

const (
	AutoDuration   = 30 * time.Second
	BufferDuration = 8 * time.Second
	TeleopDuration = 120 * time.Second
	// MatchDuration is the full structured match length.
	MatchDuration = AutoDuration + BufferDuration + TeleopDuration

	// DefaultTickInterval is how often Run polls the clock.
	DefaultTickInterval = 100 * time.Millisecond
)

// ErrAlreadyStarted is returned when Start is called on a clock that has
// already been started. Matches cannot be resumed or restarted.
var ErrAlreadyStarted = errors.New("clock already started")

// Mode selects how elapsed time is interpreted.
type Mode int

const (
	// FreeRun records without phases, optionally stopping after a timer.
	FreeRun Mode = iota
	// Structured walks the fixed auto/buffer/teleop schedule.
	Structured
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case FreeRun:
		return "freerun"
	case Structured:
		return "structured"
	default:
		return "unknown"
	}
}

// ParseMode accepts the names produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "freerun", "free-run", "free":
		return FreeRun, nil
	case "structured", "":
		return Structured, nil
	default:
		return FreeRun, errors.New("unknown match mode: " + s)
	}
}

// StopReason records why a clock stopped.
type StopReason string

const (
	StopNone   StopReason = ""
	StopManual StopReason = "manual"
	StopTimer  StopReason = "timer"
	StopPhase  StopReason = "phase"
)

// PhaseAt maps elapsed structured-match time to its phase. Boundaries are
// evaluated on whole elapsed seconds.
func PhaseAt(elapsed time.Duration) match.Phase {
	secs := elapsed.Truncate(time.Second)
	switch {
	case secs < AutoDuration:
		return match.PhaseAuto
	case secs < AutoDuration+BufferDuration:
		return match.PhaseBuffer
	case secs < MatchDuration:
		return match.PhaseTeleop
	default:
		return match.PhaseFinished
	}
}

// State is a point-in-time view of a Clock.
type State struct {
	Mode       Mode
	Phase      match.Phase
	Elapsed    time.Duration
	Timer      time.Duration
	Running    bool
	Stopped    bool
	StopReason StopReason
}

// ElapsedMS returns the elapsed time in whole milliseconds.
func (s State) ElapsedMS() int64 { return s.Elapsed.Milliseconds() }

// Clock is not safe for concurrent use; session.Recorder serializes access.
type Clock struct {
	mode    Mode
	timer   time.Duration
	now     func() time.Time
	started time.Time
	elapsed time.Duration
	phase   match.Phase
	running bool
	stopped bool
	reason  StopReason
}

// New creates an idle clock. timer is the free-run auto-stop threshold (0
// disables it) and is ignored in structured mode. now defaults to time.Now.
func New(mode Mode, timer time.Duration, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	if timer < 0 || mode == Structured {
		timer = 0
	}
	c := &Clock{mode: mode, timer: timer, now: now}
	if mode == Structured {
		c.phase = match.PhaseIdle
	}
	return c
}

// Start arms the clock at the current instant.
func (c *Clock) Start() error {
	if c.running || c.stopped {
		return ErrAlreadyStarted
	}
	c.started = c.now()
	c.running = true
	if c.mode == Structured {
		c.phase = match.PhaseAuto
	}
	return nil
}

// Tick advances the clock from the time source. It reports whether the
// phase changed or the clock stopped during this tick.
func (c *Clock) Tick() bool {
	if !c.running {
		return false
	}
	if d := c.now().Sub(c.started); d > c.elapsed {
		c.elapsed = d
	}

	switch c.mode {
	case Structured:
		next := PhaseAt(c.elapsed)
		changed := next != c.phase
		c.phase = next
		if next == match.PhaseFinished {
			c.elapsed = MatchDuration
			c.halt(StopPhase)
		}
		return changed
	default:
		if c.timer > 0 && c.elapsed >= c.timer {
			c.elapsed = c.timer
			c.halt(StopTimer)
			return true
		}
		return false
	}
}

// Stop halts the clock for good. Structured clocks move to the finished
// phase, including ones that were never started. Stopping an already stopped
// clock is a no-op.
func (c *Clock) Stop() {
	if c.stopped {
		return
	}
	if c.running {
		c.Tick()
		if c.stopped {
			return
		}
	}
	if c.mode == Structured {
		c.phase = match.PhaseFinished
	}
	c.halt(StopManual)
}

func (c *Clock) halt(reason StopReason) {
	c.running = false
	c.stopped = true
	c.reason = reason
}

// Phase returns the current phase, or match.PhaseNone in free-run mode.
func (c *Clock) Phase() match.Phase {
	if c.mode != Structured {
		return match.PhaseNone
	}
	return c.phase
}

// Elapsed returns the elapsed time as of the last tick.
func (c *Clock) Elapsed() time.Duration { return c.elapsed }

// Running reports whether the clock has started and not stopped.
func (c *Clock) Running() bool { return c.running }

// Stopped reports whether the clock reached its terminal state.
func (c *Clock) Stopped() bool { return c.stopped }

// Mode returns the clock mode.
func (c *Clock) Mode() Mode { return c.mode }

// State returns a snapshot of the clock.
func (c *Clock) State() State {
	return State{
		Mode:       c.mode,
		Phase:      c.Phase(),
		Elapsed:    c.elapsed,
		Timer:      c.timer,
		Running:    c.running,
		Stopped:    c.stopped,
		StopReason: c.reason,
	}
}

// Advance ticks the clock and returns the resulting state along with
// whether anything observable changed.
func (c *Clock) Advance() (State, bool) {
	changed := c.Tick()
	return c.State(), changed
}

// Run polls tick every interval until the clock stops or ctx is done.
// onChange is invoked after every tick that changed the phase or stopped the
// clock.
func Run(ctx context.Context, tick func() (State, bool), interval time.Duration, onChange func(State)) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, changed := tick()
			if changed && onChange != nil {
				onChange(st)
			}
			if st.Stopped {
				slog.Debug("clock loop exiting", slog.String("component", "clock"), slog.String("reason", string(st.StopReason)))
				return
			}
		}
	}
}

// Retag assigns structured phases to every event of m from its timestamp.
// Decoded matches carry no phases; this restores them for matches known to
// have been recorded in structured mode.
func Retag(m *match.Match) {
	for i := range m.Events {
		m.Events[i].Phase = PhaseAt(time.Duration(m.Events[i].TimestampMS) * time.Millisecond)
	}
}
