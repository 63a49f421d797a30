package engine

import (
	"context"
	"log/slog"
	"time"
)

// Stage is a check's state transition as seen by the engine.
type Stage string

const (
	StageAdmitted  Stage = "admitted"
	StageRejected  Stage = "rejected"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

// Event is one observability record per check transition. The engine emits
// these instead of writing diagnostics directly so it stays side-effect-free
// under test.
type Event struct {
	RunID      string
	Check      string
	Stage      Stage
	Epsilon    float64
	SpentTotal float64
	Elapsed    time.Duration
	Err        string
}

// Sink receives engine events. Implementations must not block the run.
type Sink interface {
	Event(ctx context.Context, e Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Event(context.Context, Event) {}

// LogSink writes one structured log line per event.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Event(ctx context.Context, e Event) {
	attrs := []any{
		slog.String("run_id", e.RunID),
		slog.String("check", e.Check),
		slog.String("stage", string(e.Stage)),
		slog.Float64("epsilon", e.Epsilon),
		slog.Float64("spent_total", e.SpentTotal),
	}
	if e.Elapsed > 0 {
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	if e.Err != "" {
		attrs = append(attrs, slog.String("error", e.Err))
	}
	s.log.InfoContext(ctx, "check transition", attrs...)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Event(ctx context.Context, e Event) {
	for _, s := range m {
		s.Event(ctx, e)
	}
}
