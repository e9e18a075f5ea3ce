// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode results used as the "result" label of DecodeTotal.
const (
	DecodeOK        = "ok"
	DecodeLegacy    = "legacy"
	DecodeMalformed = "malformed"
)

var (
	once sync.Once

	// Counters
	EventsRecorded   *prometheus.CounterVec // label: kind
	UndoTotal        prometheus.Counter
	MatchesFinished  *prometheus.CounterVec // label: reason
	DecodeTotal      *prometheus.CounterVec // label: result
	SegmentsSkipped  prometheus.Counter
	MatchesStored    prometheus.Counter
	RetentionDeleted prometheus.Counter
	RetentionRuns    prometheus.Counter

	// Histograms (seconds)
	EncodeDuration prometheus.Observer
	DecodeDuration prometheus.Observer

	// Gauges
	ActiveSessions prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hmad_events_recorded_total", Help: "Match events recorded by live sessions"}, []string{"kind"})
		UndoTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "hmad_undo_total", Help: "Number of undo operations that removed an event"})
		MatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hmad_matches_finished_total", Help: "Recorded matches that reached a terminal state"}, []string{"reason"})
		DecodeTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hmad_decode_total", Help: "Text decode attempts by result"}, []string{"result"})
		SegmentsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "hmad_decode_segments_skipped_total", Help: "Unrecognized segments skipped while decoding"})
		MatchesStored = promauto.NewCounter(prometheus.CounterOpts{Name: "hmad_matches_stored_total", Help: "Matches written to the store"})
		RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{Name: "hmad_retention_deleted_total", Help: "Matches removed by the retention job"})
		RetentionRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "hmad_retention_runs_total", Help: "Retention cleanup runs"})
		EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "hmad_encode_duration_seconds", Help: "Text encode duration seconds", Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8)})
		DecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "hmad_decode_duration_seconds", Help: "Text decode duration seconds", Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8)})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "hmad_active_sessions", Help: "Recording sessions currently running"})
	})
}

// RecordEvent counts an appended event of the given kind.
func RecordEvent(kind string) {
	if EventsRecorded != nil {
		EventsRecorded.WithLabelValues(kind).Inc()
	}
}

// RecordUndo counts an undo that removed an event.
func RecordUndo() {
	if UndoTotal != nil {
		UndoTotal.Inc()
	}
}

// RecordFinish counts a match reaching its terminal state.
func RecordFinish(reason string) {
	if MatchesFinished != nil {
		MatchesFinished.WithLabelValues(reason).Inc()
	}
}

// RecordDecode counts a decode attempt and the segments it skipped.
func RecordDecode(result string, skipped int) {
	if DecodeTotal != nil {
		DecodeTotal.WithLabelValues(result).Inc()
	}
	if SegmentsSkipped != nil && skipped > 0 {
		SegmentsSkipped.Add(float64(skipped))
	}
}

// RecordStored counts a match persisted to the store.
func RecordStored() {
	if MatchesStored != nil {
		MatchesStored.Inc()
	}
}

// RecordRetention counts a retention run and the matches it deleted.
func RecordRetention(deleted int) {
	if RetentionRuns != nil {
		RetentionRuns.Inc()
	}
	if RetentionDeleted != nil && deleted > 0 {
		RetentionDeleted.Add(float64(deleted))
	}
}

// SessionStarted increments the active session gauge.
func SessionStarted() {
	if ActiveSessions != nil {
		ActiveSessions.Inc()
	}
}

// SessionEnded decrements the active session gauge.
func SessionEnded() {
	if ActiveSessions != nil {
		ActiveSessions.Dec()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
