// Package cql implements the externally-defined check variant: each .cql
// artifact in a directory becomes one check, evaluated remotely as a FHIR
// Measure.
package cql

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dpqc/internal/check"
	"dpqc/internal/fhir"
	"dpqc/internal/privacy"
)

// defaultDescription is used when the artifact carries no leading comment.
const defaultDescription = "Unknown"

// Evaluator is the query-evaluation collaborator: it turns a CQL artifact
// into a population count, optionally with a subject-list reference to
// resolve. *fhir.Client satisfies it.
type Evaluator interface {
	CreateMeasure(ctx context.Context, cqlSource []byte, subjectType string) (string, error)
	EvaluateMeasure(ctx context.Context, measureID string) (fhir.MeasureResult, error)
	EvaluateMeasureList(ctx context.Context, measureID string) (fhir.MeasureResult, error)
	ResolveSubjects(ctx context.Context, reference string) ([]string, error)
}

// Check wraps one CQL artifact. The check name is the artifact's file name.
type Check struct {
	name    string
	path    string
	desc    string
	epsilon float64
	eval    Evaluator
	noise   *privacy.Mechanism
}

// New builds a check for the artifact at path.
func New(path string, epsilon float64, eval Evaluator, noise *privacy.Mechanism) *Check {
	return &Check{
		name:    filepath.Base(path),
		path:    path,
		desc:    defaultDescription,
		epsilon: epsilon,
		eval:    eval,
		noise:   noise,
	}
}

// Discover enumerates the .cql artifacts under dir in lexical order and
// builds a check per artifact.
func Discover(dir string, epsilon float64, eval Evaluator, noise *privacy.Mechanism) ([]check.Check, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cql"))
	if err != nil {
		return nil, fmt.Errorf("cql: discover %s: %w", dir, err)
	}
	sort.Strings(matches)

	checks := make([]check.Check, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		checks = append(checks, New(path, epsilon, eval, noise))
	}
	return checks, nil
}

func (c *Check) Name() string        { return c.name }
func (c *Check) Description() string { return c.desc }
func (c *Check) Epsilon() float64    { return c.epsilon }

// Execute submits the artifact for remote evaluation and privatizes the
// resulting count. Every failure is folded into the Result; nothing
// propagates past this boundary.
func (c *Check) Execute(ctx context.Context, target check.Target) check.Result {
	source, err := os.ReadFile(c.path)
	if err != nil {
		return check.Failure(c.desc, fmt.Errorf("read artifact: %w", err))
	}
	if desc, ok := leadingComment(source); ok {
		c.desc = desc
	}

	measureID, err := c.eval.CreateMeasure(ctx, source, target.SubjectType)
	if err != nil {
		return check.Failure(c.desc, err)
	}

	var (
		measured fhir.MeasureResult
		subjects []string
	)
	if target.Mode == check.ModeSubjectList {
		measured, err = c.eval.EvaluateMeasureList(ctx, measureID)
		if err != nil {
			return check.Failure(c.desc, err)
		}
		if measured.SubjectListReference != "" {
			subjects, err = c.eval.ResolveSubjects(ctx, measured.SubjectListReference)
			if err != nil {
				return check.Failure(c.desc, err)
			}
		}
	} else {
		measured, err = c.eval.EvaluateMeasure(ctx, measureID)
		if err != nil {
			return check.Failure(c.desc, err)
		}
	}

	noisy, err := c.noise.Count(measured.Count, c.epsilon)
	if err != nil {
		return check.Failure(c.desc, err)
	}

	count := measured.Count
	return check.Result{
		Count:         &count,
		CountDP:       &noisy,
		EpsilonUsed:   c.epsilon,
		Description:   c.desc,
		ListReference: measured.SubjectListReference,
		SubjectIDs:    subjects,
	}
}

// leadingComment extracts a "// ..." comment from the artifact's first line.
func leadingComment(source []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(source))
	if !scanner.Scan() {
		return "", false
	}
	line := strings.TrimSpace(scanner.Text())
	if !strings.HasPrefix(line, "//") {
		return "", false
	}
	comment := strings.TrimSpace(strings.TrimPrefix(line, "//"))
	if comment == "" {
		return "", false
	}
	return comment, true
}
