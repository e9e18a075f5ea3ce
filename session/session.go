// Package session drives a live recording: one match, one clock, and the
// hooks that fire when the match ends. A Recorder is safe for concurrent use
// so the HTTP layer and the tick loop can share it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/hmad-scout/clock"
	"github.com/onnwee/hmad-scout/match"
	"github.com/onnwee/hmad-scout/telemetry"
)

// ErrNotRecording is returned when an event is recorded outside a running
// match.
var ErrNotRecording = errors.New("match is not recording")

// Options configures a new Recorder.
type Options struct {
	Mode       clock.Mode
	Timer      time.Duration // free-run auto-stop, 0 = untimed
	TeamNumber string
	Notes      string
	Now        func() time.Time
}

// FinishFunc receives the final match and clock state once a recording ends.
type FinishFunc func(m match.Match, st clock.State)

// ChangeFunc receives the clock state when the background tick loop observes
// a phase change or a stop.
type ChangeFunc func(st clock.State)

// Recorder owns the match being recorded.
type Recorder struct {
	mu       sync.Mutex
	match    *match.Match
	clock    *clock.Clock
	now      func() time.Time
	started  bool
	finished bool
	hooks    []FinishFunc
	changes  []ChangeFunc
	log      *slog.Logger
}

// New creates an idle recorder.
func New(opts Options) *Recorder {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := match.New()
	m.TeamNumber = opts.TeamNumber
	m.Notes = opts.Notes
	return &Recorder{
		match: m,
		clock: clock.New(opts.Mode, opts.Timer, now),
		now:   now,
		log:   slog.Default().With(slog.String("component", "session")),
	}
}

// OnFinish registers fn to run once when a started match stops. Hooks run
// outside the recorder lock, in registration order.
func (r *Recorder) OnFinish(fn FinishFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// OnChange registers fn to run from Run whenever the phase changes or the
// clock stops.
func (r *Recorder) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, fn)
}

// Start stamps the wall-clock start time and starts the clock.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.clock.Start(); err != nil {
		return err
	}
	r.started = true
	r.match.StartTimeMS = match.Int64(r.now().UnixMilli())
	r.match.DurationSeconds = nil
	telemetry.SessionStarted()
	r.log.Info("match started", slog.String("mode", r.clock.Mode().String()), slog.String("team", r.match.TeamNumber))
	return nil
}

// Cycle records a scoring cycle at the current elapsed time.
func (r *Recorder) Cycle(attempted, scored int) (match.Event, error) {
	return r.record(func(ts uint32, phase match.Phase) (match.Event, error) {
		return r.match.AppendCycle(attempted, scored, ts, phase)
	})
}

// Gate records a gate event at the current elapsed time.
func (r *Recorder) Gate() (match.Event, error) {
	return r.record(func(ts uint32, phase match.Phase) (match.Event, error) {
		return r.match.AppendGate(ts, phase), nil
	})
}

func (r *Recorder) record(appendFn func(ts uint32, phase match.Phase) (match.Event, error)) (match.Event, error) {
	r.mu.Lock()
	if !r.clock.Running() {
		r.mu.Unlock()
		return match.Event{}, ErrNotRecording
	}
	r.clock.Tick()
	if r.clock.Stopped() {
		fire := r.finishLocked()
		r.mu.Unlock()
		fire()
		return match.Event{}, ErrNotRecording
	}
	ev, err := appendFn(uint32(r.clock.Elapsed().Milliseconds()), r.clock.Phase())
	r.mu.Unlock()
	if err != nil {
		return match.Event{}, err
	}
	telemetry.RecordEvent(string(ev.Kind))
	return ev, nil
}

// Undo removes the most recent event. It is allowed at any time, including
// after the match has stopped.
func (r *Recorder) Undo() (match.Event, bool) {
	r.mu.Lock()
	ev, ok := r.match.UndoLast()
	r.mu.Unlock()
	if ok {
		telemetry.RecordUndo()
	}
	return ev, ok
}

// Stop ends the match. Stopping an already stopped match is a no-op.
func (r *Recorder) Stop() clock.State {
	r.mu.Lock()
	r.clock.Stop()
	fire := r.finishLocked()
	st := r.clock.State()
	r.mu.Unlock()
	fire()
	return st
}

// Tick advances the clock and finishes the match if the clock stopped on its
// own.
func (r *Recorder) Tick() clock.State {
	st, _ := r.advance()
	return st
}

func (r *Recorder) advance() (clock.State, bool) {
	r.mu.Lock()
	st, changed := r.clock.Advance()
	fire := func() {}
	if st.Stopped {
		fire = r.finishLocked()
	}
	r.mu.Unlock()
	fire()
	return st, changed
}

// Run ticks the recorder every interval until the match stops or ctx is
// done.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	clock.Run(ctx, r.advance, interval, func(st clock.State) {
		r.log.Debug("clock changed", slog.String("phase", string(st.Phase)), slog.Int64("elapsed_ms", st.ElapsedMS()), slog.Bool("stopped", st.Stopped))
		r.mu.Lock()
		changes := append([]ChangeFunc(nil), r.changes...)
		r.mu.Unlock()
		for _, fn := range changes {
			fn(st)
		}
	})
}

// finishLocked marks the match finished and returns the hook invocation to
// run after the lock is released. It is a no-op unless the clock has
// stopped for the first time after being started.
func (r *Recorder) finishLocked() func() {
	if r.finished || !r.clock.Stopped() {
		return func() {}
	}
	r.finished = true
	st := r.clock.State()
	if !r.started {
		return func() {}
	}
	r.match.DurationSeconds = match.Int64(st.ElapsedMS() / 1000)
	telemetry.RecordFinish(string(st.StopReason))
	telemetry.SessionEnded()
	r.log.Info("match finished",
		slog.String("reason", string(st.StopReason)),
		slog.Int64("duration_s", *r.match.DurationSeconds),
		slog.Int("events", len(r.match.Events)),
	)

	snap := r.match.Clone()
	hooks := append([]FinishFunc(nil), r.hooks...)
	return func() {
		for _, fn := range hooks {
			fn(snap, st)
		}
	}
}

// Snapshot returns an independent copy of the match.
func (r *Recorder) Snapshot() match.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match.Clone()
}

// State returns the clock state as of the last tick.
func (r *Recorder) State() clock.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.State()
}

// SetNotes replaces the match notes. Notes stay editable after the match
// stops.
func (r *Recorder) SetNotes(notes string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.match.Notes = notes
}

// SetTeamNumber replaces the scouted team number.
func (r *Recorder) SetTeamNumber(team string) error {
	if err := match.ValidateTeamNumber(team); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.match.TeamNumber = team
	return nil
}
