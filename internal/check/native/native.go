// Package native implements the built-in statistical audits. Each audit
// fetches a bounded, paginated resource set, applies a local predicate,
// deduplicates subject references, and privatizes the count.
package native

import (
	"context"
	"encoding/json"
	"time"

	"dpqc/internal/check"
	"dpqc/internal/privacy"
)

// Fetcher is the resource-fetch collaborator. Pagination and retry happen
// behind this call; checks consume it as one logical fetch. *fhir.Client
// satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, resourceType string, elements []string) ([]json.RawMessage, error)
}

// Config carries the site-specific tunables of the native audits.
type Config struct {
	// IdentifierSystem scopes the duplicate audit to one identifier namespace.
	IdentifierSystem string
	// SampleDiagnosisURL is the Specimen extension holding the diagnosis code.
	SampleDiagnosisURL string
	// StaleCutoff marks records older than this as stale.
	StaleCutoff time.Time
}

// DefaultConfig returns the standard biobank profile with a staleness window
// of one year before now.
func DefaultConfig(now time.Time) Config {
	return Config{
		IdentifierSystem:   "https://fhir.bbmri.de/id/patient",
		SampleDiagnosisURL: "https://fhir.bbmri.de/StructureDefinition/SampleDiagnosis",
		StaleCutoff:        now.AddDate(-1, 0, 0),
	}
}

// All returns the native audits in their fixed declaration order. The engine
// appends them after the discovered CQL checks, so this order decides their
// budget priority.
func All(cfg Config, epsilon float64, fetch Fetcher, noise *privacy.Mechanism) []check.Check {
	return []check.Check{
		NewDuplicateIdentifier(cfg.IdentifierSystem, epsilon, fetch, noise),
		NewInvalidConditionCode(epsilon, fetch, noise),
		NewInvalidSpecimenCode(cfg.SampleDiagnosisURL, epsilon, fetch, noise),
		NewStaleRecord(cfg.StaleCutoff, epsilon, fetch, noise),
	}
}

// dedupe removes repeated references, preserving first-seen order so
// subject-list output stays stable across runs.
func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// finish privatizes the deduplicated reference count and assembles the
// result, attaching the subject list only in subject-list mode.
func finish(refs []string, desc string, epsilon float64, noise *privacy.Mechanism, mode check.ReportMode) check.Result {
	unique := dedupe(refs)
	count := len(unique)

	noisy, err := noise.Count(count, epsilon)
	if err != nil {
		return check.Failure(desc, err)
	}

	res := check.Result{
		Count:       &count,
		CountDP:     &noisy,
		EpsilonUsed: epsilon,
		Description: desc,
	}
	if mode == check.ModeSubjectList {
		res.SubjectIDs = unique
	}
	return res
}
