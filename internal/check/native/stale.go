package native

import (
	"context"
	"encoding/json"
	"time"

	"dpqc/internal/check"
	"dpqc/internal/fhir"
	"dpqc/internal/privacy"
)

// StaleRecord counts patients whose record was last updated before the
// cutoff. When no patient carries a stale meta.lastUpdated, it falls back to
// Condition.recordedDate, since some stores rewrite patient metadata on
// unrelated batch jobs.
type StaleRecord struct {
	cutoff  time.Time
	epsilon float64
	fetch   Fetcher
	noise   *privacy.Mechanism
}

func NewStaleRecord(cutoff time.Time, epsilon float64, fetch Fetcher, noise *privacy.Mechanism) *StaleRecord {
	return &StaleRecord{cutoff: cutoff, epsilon: epsilon, fetch: fetch, noise: noise}
}

func (c *StaleRecord) Name() string { return "timeliness-1" }
func (c *StaleRecord) Description() string {
	return "How many patients were last updated more than a year ago"
}
func (c *StaleRecord) Epsilon() float64 { return c.epsilon }

func (c *StaleRecord) Execute(ctx context.Context, target check.Target) check.Result {
	raw, err := c.fetch.FetchAll(ctx, "Patient", []string{"id", "meta"})
	if err != nil {
		return check.Failure(c.Description(), err)
	}

	var stale []string
	for _, entry := range raw {
		var patient fhir.Patient
		if err := json.Unmarshal(entry, &patient); err != nil {
			continue
		}
		if patient.Meta == nil || patient.Meta.LastUpdated == "" {
			continue
		}
		updated, err := fhir.ParseTime(patient.Meta.LastUpdated)
		if err != nil {
			continue
		}
		if updated.Before(c.cutoff) {
			stale = append(stale, "Patient/"+patient.ID)
		}
	}

	if len(stale) == 0 {
		stale, err = c.staleByRecordedDate(ctx)
		if err != nil {
			return check.Failure(c.Description(), err)
		}
	}

	return finish(stale, c.Description(), c.epsilon, c.noise, target.Mode)
}

func (c *StaleRecord) staleByRecordedDate(ctx context.Context) ([]string, error) {
	raw, err := c.fetch.FetchAll(ctx, "Condition", []string{"subject", "recordedDate"})
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, entry := range raw {
		var condition fhir.Condition
		if err := json.Unmarshal(entry, &condition); err != nil {
			continue
		}
		if condition.RecordedDate == "" || condition.Subject == nil || condition.Subject.Reference == "" {
			continue
		}
		recorded, err := fhir.ParseTime(condition.RecordedDate)
		if err != nil {
			continue
		}
		if recorded.Before(c.cutoff) {
			stale = append(stale, condition.Subject.Reference)
		}
	}
	return stale, nil
}
