// Package check defines the unit of work the engine runs: a named,
// epsilon-priced quality check producing a privatized count. Checks of
// different origins (CQL artifacts, native audits) implement the same
// interface so the engine can treat them uniformly.
package check

import (
	"context"
	"fmt"
)

// ReportMode selects how much a check releases: a bare population count or
// the count plus the matching subject identifiers.
type ReportMode string

const (
	ModePopulation  ReportMode = "population"
	ModeSubjectList ReportMode = "subject-list"
)

// ParseReportMode validates a user-supplied mode string.
func ParseReportMode(s string) (ReportMode, error) {
	switch ReportMode(s) {
	case ModePopulation, ModeSubjectList:
		return ReportMode(s), nil
	default:
		return "", fmt.Errorf("check: unknown report mode %q", s)
	}
}

// Target carries the run-level options every check needs at execution time.
// The data source itself is injected into each check at construction.
type Target struct {
	SubjectType string
	Mode        ReportMode
}

// Check is the capability contract all variants implement. Execute is total
// from the engine's point of view: it never panics past its boundary and
// always returns a Result, possibly one carrying an error.
type Check interface {
	Name() string
	Description() string
	Epsilon() float64
	Execute(ctx context.Context, target Target) Result
}

// Result is one check's outcome. Count and CountDP are both present on
// success and both absent on failure. EpsilonUsed is 0 for skipped or failed
// checks. Field names match the report wire format.
type Result struct {
	Count         *int     `json:"count,omitempty"`
	CountDP       *int     `json:"countWithDP,omitempty"`
	EpsilonUsed   float64  `json:"epsilonUsed"`
	Description   string   `json:"description,omitempty"`
	ListReference string   `json:"listReference,omitempty"`
	SubjectIDs    []string `json:"patientIds,omitempty"`
	Err           string   `json:"error,omitempty"`
}

// Failure folds an execution error into a Result. No count was released, so
// no epsilon is billed.
func Failure(description string, err error) Result {
	return Result{
		Description: description,
		EpsilonUsed: 0,
		Err:         err.Error(),
	}
}
