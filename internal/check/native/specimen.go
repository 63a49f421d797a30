package native

import (
	"context"
	"encoding/json"

	"dpqc/internal/check"
	"dpqc/internal/fhir"
	"dpqc/internal/privacy"
	"dpqc/internal/terminology"
)

// InvalidSpecimenCode counts subjects whose Specimen sample-diagnosis
// extension carries a code that fails terminology validation.
type InvalidSpecimenCode struct {
	extensionURL string
	epsilon      float64
	fetch        Fetcher
	noise        *privacy.Mechanism
}

func NewInvalidSpecimenCode(extensionURL string, epsilon float64, fetch Fetcher, noise *privacy.Mechanism) *InvalidSpecimenCode {
	return &InvalidSpecimenCode{extensionURL: extensionURL, epsilon: epsilon, fetch: fetch, noise: noise}
}

func (c *InvalidSpecimenCode) Name() string { return "validity-2" }
func (c *InvalidSpecimenCode) Description() string {
	return "How many Specimens have invalid ICD-10 diagnoses"
}
func (c *InvalidSpecimenCode) Epsilon() float64 { return c.epsilon }

func (c *InvalidSpecimenCode) Execute(ctx context.Context, target check.Target) check.Result {
	raw, err := c.fetch.FetchAll(ctx, "Specimen", []string{"id", "extension", "subject"})
	if err != nil {
		return check.Failure(c.Description(), err)
	}

	var invalid []string
	for _, entry := range raw {
		var specimen fhir.Specimen
		if err := json.Unmarshal(entry, &specimen); err != nil {
			continue
		}
		coding, ok := c.diagnosisCoding(specimen)
		if !ok || coding.Code == "" {
			continue
		}
		if terminology.Valid(coding.System, coding.Code) {
			continue
		}
		if specimen.Subject != nil && specimen.Subject.Reference != "" {
			invalid = append(invalid, specimen.Subject.Reference)
		}
	}

	return finish(invalid, c.Description(), c.epsilon, c.noise, target.Mode)
}

// diagnosisCoding pulls the first coding of the sample-diagnosis extension.
func (c *InvalidSpecimenCode) diagnosisCoding(specimen fhir.Specimen) (fhir.Coding, bool) {
	for _, ext := range specimen.Extension {
		if ext.URL != c.extensionURL {
			continue
		}
		if ext.ValueCodeableConcept == nil || len(ext.ValueCodeableConcept.Coding) == 0 {
			return fhir.Coding{}, false
		}
		return ext.ValueCodeableConcept.Coding[0], true
	}
	return fhir.Coding{}, false
}
