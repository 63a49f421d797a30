package audit

import "context"

// Worker consumes audit events from a channel and persists them. It keeps
// background persistence off the engine's critical path.
type Worker struct {
	store Store
	inbox <-chan Event
}

func NewWorker(store Store, inbox <-chan Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

// Run drains the inbox until it is closed (normal end of run) or ctx is
// cancelled. A closed inbox returns nil so the caller can distinguish a
// clean flush from an abort.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, e); err != nil {
				return err
			}
		}
	}
}
