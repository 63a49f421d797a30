// Package engine runs the registered checks sequentially against the shared
// epsilon budget: admit, execute, charge on success, record. No failure
// inside a check crosses the engine boundary; the final report enumerates
// every registered check.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dpqc/internal/budget"
	"dpqc/internal/check"
	"dpqc/internal/platform/metrics"
	"dpqc/internal/privacy"
	"dpqc/internal/report"
)

var (
	// ErrBudgetTooSmall rejects a run whose per-query epsilon already exceeds
	// the total budget: no check could ever be admitted.
	ErrBudgetTooSmall = errors.New("engine: per-query epsilon exceeds total epsilon budget")
	// ErrRunCancelled marks checks that were still pending when the run was
	// aborted.
	ErrRunCancelled = errors.New("run cancelled before execution")
)

// Params is the run configuration the engine's entry point accepts.
type Params struct {
	SubjectType string
	Mode        check.ReportMode
	Epsilon     float64
	TotalBudget float64
}

// Validate applies the input-boundary invariants before any check runs.
func (p Params) Validate() error {
	if p.Epsilon <= 0 {
		return privacy.ErrInvalidEpsilon
	}
	if p.TotalBudget <= 0 {
		return budget.ErrInvalidBudget
	}
	if p.Epsilon > p.TotalBudget {
		return ErrBudgetTooSmall
	}
	if _, err := check.ParseReportMode(string(p.Mode)); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if p.SubjectType == "" {
		return errors.New("engine: subject type is required")
	}
	return nil
}

// Engine iterates the registry in order with a fresh ledger per run.
type Engine struct {
	registry *check.Registry
	sink     Sink
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// New wires an engine. A nil sink discards events; nil metrics disable
// instrumentation.
func New(registry *check.Registry, sink Sink, m *metrics.Metrics) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		registry: registry,
		sink:     sink,
		metrics:  m,
		tracer:   otel.Tracer("dpqc/engine"),
	}
}

// Run executes every registered check in order. Admission consults the
// ledger as of the moment each check is considered, so an earlier check's
// completion directly affects whether a later one is admitted. Cancelling
// ctx stops before the next admission; completed results are kept and the
// ledger's spend stays the authoritative record of what was billed.
func (e *Engine) Run(ctx context.Context, p Params) (*report.Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ledger, err := budget.NewLedger(p.TotalBudget)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	target := check.Target{SubjectType: p.SubjectType, Mode: p.Mode}
	agg := report.NewAggregator()

	for _, c := range e.registry.Checks() {
		name := c.Name()

		if ctx.Err() != nil {
			agg.Add(name, check.Failure(c.Description(), ErrRunCancelled))
			e.transition(ctx, Event{RunID: runID, Check: name, Stage: StageCancelled, SpentTotal: ledger.Spent()})
			continue
		}

		eps := c.Epsilon()
		if !ledger.Admit(eps) {
			agg.Add(name, check.Failure(c.Description(), budget.ErrExceeded))
			e.transition(ctx, Event{RunID: runID, Check: name, Stage: StageRejected, Epsilon: eps, SpentTotal: ledger.Spent(), Err: budget.ErrExceeded.Error()})
			continue
		}
		e.transition(ctx, Event{RunID: runID, Check: name, Stage: StageAdmitted, Epsilon: eps, SpentTotal: ledger.Spent()})

		start := time.Now()
		execCtx, span := e.tracer.Start(ctx, "check.execute", trace.WithAttributes(
			attribute.String("check.name", name),
			attribute.Float64("check.epsilon", eps),
		))
		res := c.Execute(execCtx, target)
		span.End()
		elapsed := time.Since(start)

		if res.Description == "" {
			res.Description = c.Description()
		}
		// Failed checks report EpsilonUsed 0, so this bills only completions.
		ledger.Charge(res.EpsilonUsed)

		e.metrics.ObserveCheckDuration(name, elapsed)
		e.metrics.SetEpsilonSpent(ledger.Spent())

		stage := StageCompleted
		if res.Err != "" {
			stage = StageFailed
		}
		e.transition(ctx, Event{RunID: runID, Check: name, Stage: stage, Epsilon: res.EpsilonUsed, SpentTotal: ledger.Spent(), Elapsed: elapsed, Err: res.Err})

		agg.Add(name, res)
	}

	return agg.Finalize(ledger.Spent()), nil
}

func (e *Engine) transition(ctx context.Context, ev Event) {
	e.sink.Event(ctx, ev)
	switch ev.Stage {
	case StageRejected, StageCompleted, StageFailed, StageCancelled:
		e.metrics.IncrementOutcome(string(ev.Stage))
	}
}
