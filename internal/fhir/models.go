package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle is a FHIR search result page. Entry resources are kept raw so each
// check decodes only the elements it asked for.
type Bundle struct {
	Entry []BundleEntry `json:"entry"`
	Link  []BundleLink  `json:"link"`
}

type BundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// NextLink returns the URL of the next page, or "" on the last page.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// Patient carries the elements the native checks request.
type Patient struct {
	ID         string       `json:"id"`
	Identifier []Identifier `json:"identifier"`
	Meta       *Meta        `json:"meta"`
}

type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

type Meta struct {
	LastUpdated string `json:"lastUpdated"`
}

type Condition struct {
	ID           string           `json:"id"`
	Code         *CodeableConcept `json:"code"`
	Subject      *Reference       `json:"subject"`
	RecordedDate string           `json:"recordedDate"`
}

type Specimen struct {
	ID        string      `json:"id"`
	Extension []Extension `json:"extension"`
	Subject   *Reference  `json:"subject"`
}

type Extension struct {
	URL                  string           `json:"url"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding"`
}

type Coding struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

type Reference struct {
	Reference string `json:"reference"`
}

// MeasureResult is the distilled outcome of a measure evaluation.
type MeasureResult struct {
	Count                int
	SubjectListReference string
}

// measureReport mirrors the slice of a FHIR MeasureReport the checks read.
type measureReport struct {
	Group []struct {
		Population []struct {
			Count          int `json:"count"`
			SubjectResults struct {
				Reference string `json:"reference"`
			} `json:"subjectResults"`
		} `json:"population"`
	} `json:"group"`
}

func (r measureReport) result() MeasureResult {
	if len(r.Group) == 0 || len(r.Group[0].Population) == 0 {
		return MeasureResult{}
	}
	pop := r.Group[0].Population[0]
	return MeasureResult{
		Count:                pop.Count,
		SubjectListReference: pop.SubjectResults.Reference,
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseTime parses the FHIR instant/date/dateTime forms, which allow partial
// dates such as "2024-05" on recordedDate.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("fhir: unparseable time %q", s)
}
