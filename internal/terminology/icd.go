// Package terminology validates diagnosis codes against the code systems the
// quality checks recognise. It is a black box to the engine: checks only ask
// whether a (system, code) pair is valid.
package terminology

import (
	"regexp"
	"strings"
)

// Code systems recognised by the validity checks.
const (
	SystemICD10   = "http://hl7.org/fhir/sid/icd-10"
	SystemICD10CM = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemICD9CM  = "http://hl7.org/fhir/sid/icd-9-cm"
)

var (
	// ICD-10 category: letter, digit, digit-or-A/B, optional subdivision of
	// up to four alphanumerics after the dot.
	icd10Pattern = regexp.MustCompile(`^[A-Z][0-9][0-9AB](\.[0-9A-Z]{1,4})?$`)
	// ICD-9-CM: three digits with an optional one- or two-digit decimal.
	icd9Pattern = regexp.MustCompile(`^\d{3}(\.\d{1,2})?$`)
)

// ValidICD10 reports whether code is structurally a valid ICD-10 code.
// Codes are matched case-insensitively. The U chapter is reserved for
// provisional assignment and is not accepted.
func ValidICD10(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !icd10Pattern.MatchString(code) {
		return false
	}
	return code[0] != 'U'
}

// ValidICD9 reports whether code is structurally a valid ICD-9-CM code.
func ValidICD9(code string) bool {
	return icd9Pattern.MatchString(strings.TrimSpace(code))
}

// Valid dispatches on the coding system. Unknown systems are never valid;
// the caller decides whether an unrecognised system counts as a finding.
func Valid(system, code string) bool {
	if code == "" {
		return false
	}
	switch system {
	case SystemICD10, SystemICD10CM:
		return ValidICD10(code)
	case SystemICD9CM:
		return ValidICD9(code)
	default:
		return false
	}
}
