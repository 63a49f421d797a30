package budget

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidBudget rejects non-positive total budgets before a run starts.
	ErrInvalidBudget = errors.New("budget: total epsilon budget must be > 0")
	// ErrExceeded is the per-check rejection recorded when admitting a check
	// would push cumulative spend past the total budget.
	ErrExceeded = errors.New("exceeded total epsilon budget")
)

// Ledger tracks cumulative epsilon spent during one run against a fixed
// total. Spend is monotone: charges are never rolled back and checks are
// never retried within a run. The mutex lets a concurrent caller treat
// Admit+Charge (or Reserve) as a single critical section; the engine itself
// runs checks sequentially.
type Ledger struct {
	mu    sync.Mutex
	total float64
	spent float64
}

// NewLedger creates a run-scoped ledger with nothing spent.
func NewLedger(total float64) (*Ledger, error) {
	if total <= 0 {
		return nil, ErrInvalidBudget
	}
	return &Ledger{total: total}, nil
}

// Admit reports whether a check requesting eps can run without the
// cumulative spend exceeding the total. It does not bill anything; the
// caller charges only after the check's count-producing step succeeds.
func (l *Ledger) Admit(eps float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent+eps <= l.total
}

// Charge bills eps against the budget. A check that failed before producing
// a count charges 0 since no private information was released.
func (l *Ledger) Charge(eps float64) {
	if eps <= 0 {
		return
	}
	l.mu.Lock()
	l.spent += eps
	l.mu.Unlock()
}

// Spent returns the cumulative epsilon billed so far. After a run this is
// the authoritative record of privacy loss, including aborted runs.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Total returns the configured ceiling.
func (l *Ledger) Total() float64 {
	return l.total
}
