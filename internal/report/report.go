// Package report aggregates check results into the structure downstream
// renderers consume: an ordered mapping of check name to result plus the
// total epsilon spent.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"dpqc/internal/check"
)

// Report is the finalized result set of one run. Iteration order matches the
// registry order the checks ran in.
type Report struct {
	names            []string
	results          map[string]check.Result
	TotalEpsilonUsed float64
}

// Names returns the check names in run order.
func (r *Report) Names() []string {
	return r.names
}

// Result returns the result recorded for a check name.
func (r *Report) Result(name string) (check.Result, bool) {
	res, ok := r.results[name]
	return res, ok
}

// MarshalJSON emits the original wire shape: one key per check in run order,
// plus a trailing totalEpsilonUsed scalar.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.results[name])
		if err != nil {
			return nil, fmt.Errorf("report: marshal %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	if len(r.names) > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"totalEpsilonUsed":`)
	total, err := json.Marshal(r.TotalEpsilonUsed)
	if err != nil {
		return nil, err
	}
	buf.Write(total)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Aggregator collects results as the engine records them. Names are assumed
// unique; the registry rejects duplicates at construction.
type Aggregator struct {
	names   []string
	results map[string]check.Result
}

func NewAggregator() *Aggregator {
	return &Aggregator{results: make(map[string]check.Result)}
}

// Add records one check's result, preserving insertion order.
func (a *Aggregator) Add(name string, res check.Result) {
	if _, ok := a.results[name]; !ok {
		a.names = append(a.names, name)
	}
	a.results[name] = res
}

// Finalize seals the aggregation with the ledger's authoritative spend total.
func (a *Aggregator) Finalize(totalEpsilon float64) *Report {
	return &Report{
		names:            a.names,
		results:          a.results,
		TotalEpsilonUsed: totalEpsilon,
	}
}
