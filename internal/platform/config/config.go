package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Checks holds the file-configurable tunables of a run so main stays lean.
// CLI flags cover the per-run knobs (directory, epsilon, budget); this file
// covers the site profile that rarely changes between runs.
type Checks struct {
	// ReportPath is where the HTML report is written.
	ReportPath string `yaml:"reportPath"`
	// TotalSubjects is the percentage denominator in the HTML report.
	TotalSubjects int `yaml:"totalSubjects"`
	// IdentifierSystem scopes the duplicate-identifier audit.
	IdentifierSystem string `yaml:"identifierSystem"`
	// SampleDiagnosisURL is the Specimen extension audited for ICD validity.
	SampleDiagnosisURL string `yaml:"sampleDiagnosisUrl"`
	// StaleCutoff (RFC3339) marks older records stale; empty means one year
	// before the run starts.
	StaleCutoff string `yaml:"staleCutoff"`
	// PageSize is the _count used when paginating resource fetches.
	PageSize int `yaml:"pageSize"`
	// AuditDSN, when set, enables the PostgreSQL audit trail.
	AuditDSN string `yaml:"auditDsn"`
}

// Default returns the standard biobank profile.
func Default() Checks {
	return Checks{
		ReportPath:         "qc_report.html",
		TotalSubjects:      1000,
		IdentifierSystem:   "https://fhir.bbmri.de/id/patient",
		SampleDiagnosisURL: "https://fhir.bbmri.de/StructureDefinition/SampleDiagnosis",
		PageSize:           100,
	}
}

// Load reads a YAML profile over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Checks, error) {
	cfg := Default()
	if path == "" {
		return cfg.withEnv(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Checks{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Checks{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.withEnv(), nil
}

// withEnv applies environment overrides so secrets stay out of config files.
func (c Checks) withEnv() Checks {
	if dsn := os.Getenv("DPQC_AUDIT_DSN"); dsn != "" {
		c.AuditDSN = dsn
	}
	return c
}

// CutoffTime resolves the staleness cutoff relative to now.
func (c Checks) CutoffTime(now time.Time) (time.Time, error) {
	if c.StaleCutoff == "" {
		return now.AddDate(-1, 0, 0), nil
	}
	t, err := time.Parse(time.RFC3339, c.StaleCutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: staleCutoff: %w", err)
	}
	return t, nil
}
