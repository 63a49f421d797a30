package audit

import (
	"context"
	"sync"
)

// Store persists audit events. Implementations are append-only; the trail is
// never rewritten.
type Store interface {
	Append(ctx context.Context, e Event) error
	ListByRun(ctx context.Context, runID string) ([]Event, error)
}

// MemoryStore keeps events in process memory. It backs tests and runs where
// no DSN is configured.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) ListByRun(_ context.Context, runID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}
