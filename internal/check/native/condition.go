package native

import (
	"context"
	"encoding/json"

	"dpqc/internal/check"
	"dpqc/internal/fhir"
	"dpqc/internal/privacy"
	"dpqc/internal/terminology"
)

// InvalidConditionCode counts subjects with Condition resources whose
// codings include no valid ICD-10 or ICD-9 code. Conditions without any
// coding are not findings; only a populated, entirely invalid coding set is.
type InvalidConditionCode struct {
	epsilon float64
	fetch   Fetcher
	noise   *privacy.Mechanism
}

func NewInvalidConditionCode(epsilon float64, fetch Fetcher, noise *privacy.Mechanism) *InvalidConditionCode {
	return &InvalidConditionCode{epsilon: epsilon, fetch: fetch, noise: noise}
}

func (c *InvalidConditionCode) Name() string { return "validity-1" }
func (c *InvalidConditionCode) Description() string {
	return "How many conditions have invalid ICD-10 codes"
}
func (c *InvalidConditionCode) Epsilon() float64 { return c.epsilon }

func (c *InvalidConditionCode) Execute(ctx context.Context, target check.Target) check.Result {
	raw, err := c.fetch.FetchAll(ctx, "Condition", []string{"id", "code", "subject"})
	if err != nil {
		return check.Failure(c.Description(), err)
	}

	var invalid []string
	for _, entry := range raw {
		var condition fhir.Condition
		if err := json.Unmarshal(entry, &condition); err != nil {
			continue
		}
		if condition.Code == nil || len(condition.Code.Coding) == 0 {
			continue
		}
		if hasValidCoding(condition.Code.Coding) {
			continue
		}
		if condition.Subject != nil && condition.Subject.Reference != "" {
			invalid = append(invalid, condition.Subject.Reference)
		}
	}

	return finish(invalid, c.Description(), c.epsilon, c.noise, target.Mode)
}

func hasValidCoding(codings []fhir.Coding) bool {
	for _, coding := range codings {
		if terminology.Valid(coding.System, coding.Code) {
			return true
		}
	}
	return false
}
