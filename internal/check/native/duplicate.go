package native

import (
	"context"
	"encoding/json"

	"dpqc/internal/check"
	"dpqc/internal/fhir"
	"dpqc/internal/privacy"
)

// DuplicateIdentifier counts patients whose identifier value, within the
// configured identifier system, appears on more than one Patient record.
type DuplicateIdentifier struct {
	system  string
	epsilon float64
	fetch   Fetcher
	noise   *privacy.Mechanism
}

func NewDuplicateIdentifier(system string, epsilon float64, fetch Fetcher, noise *privacy.Mechanism) *DuplicateIdentifier {
	return &DuplicateIdentifier{system: system, epsilon: epsilon, fetch: fetch, noise: noise}
}

func (c *DuplicateIdentifier) Name() string        { return "uniqueness-1" }
func (c *DuplicateIdentifier) Description() string { return "Duplicate patients" }
func (c *DuplicateIdentifier) Epsilon() float64    { return c.epsilon }

func (c *DuplicateIdentifier) Execute(ctx context.Context, target check.Target) check.Result {
	raw, err := c.fetch.FetchAll(ctx, "Patient", []string{"id", "identifier"})
	if err != nil {
		return check.Failure(c.Description(), err)
	}

	byValue := make(map[string][]string)
	for _, entry := range raw {
		var patient fhir.Patient
		if err := json.Unmarshal(entry, &patient); err != nil {
			continue
		}
		for _, ident := range patient.Identifier {
			if ident.System != c.system || ident.Value == "" {
				continue
			}
			byValue[ident.Value] = append(byValue[ident.Value], "Patient/"+patient.ID)
		}
	}

	var duplicated []string
	for _, refs := range byValue {
		if len(refs) > 1 {
			duplicated = append(duplicated, refs...)
		}
	}

	return finish(duplicated, c.Description(), c.epsilon, c.noise, target.Mode)
}
