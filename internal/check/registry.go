package check

import (
	"errors"
	"fmt"
)

// ErrDuplicateName rejects registries with two checks sharing a name. The
// report is keyed by name, so duplicates would silently overwrite results;
// failing at construction keeps reports deterministic.
var ErrDuplicateName = errors.New("check: duplicate check name")

// Registry is the ordered sequence of checks for one run. Order matters: it
// decides which checks get priority access to the shared budget when it runs
// out partway through the sequence.
type Registry struct {
	checks []Check
	names  map[string]struct{}
}

// NewRegistry builds a registry, preserving the given order.
func NewRegistry(checks ...Check) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(checks))}
	for _, c := range checks {
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a check, rejecting duplicate names.
func (r *Registry) Add(c Check) error {
	if _, ok := r.names[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, c.Name())
	}
	r.names[c.Name()] = struct{}{}
	r.checks = append(r.checks, c)
	return nil
}

// Checks returns the registered checks in registration order.
func (r *Registry) Checks() []Check {
	return r.checks
}

// Len reports the number of registered checks.
func (r *Registry) Len() int {
	return len(r.checks)
}
