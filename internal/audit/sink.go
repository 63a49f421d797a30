package audit

import (
	"context"
	"time"

	"dpqc/internal/engine"
)

// Sink adapts engine events into audit events on a buffered inbox. When the
// buffer is full the event is dropped rather than blocking the run; the
// ledger, not the trail, is the authoritative spend record.
type Sink struct {
	inbox chan Event
}

// NewSink returns the sink and the inbox a Worker should drain.
func NewSink(buffer int) (*Sink, <-chan Event) {
	s := &Sink{inbox: make(chan Event, buffer)}
	return s, s.inbox
}

func (s *Sink) Event(_ context.Context, e engine.Event) {
	ev := Event{
		Timestamp:  time.Now(),
		RunID:      e.RunID,
		Check:      e.Check,
		Stage:      string(e.Stage),
		Epsilon:    e.Epsilon,
		SpentTotal: e.SpentTotal,
		Detail:     e.Err,
	}
	select {
	case s.inbox <- ev:
	default:
	}
}

// Close signals the worker that no more events will arrive.
func (s *Sink) Close() {
	close(s.inbox)
}
