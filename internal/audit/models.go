package audit

import "time"

// Event is one check transition captured for the audit trail. Privacy-budget
// accounting is worth keeping beyond the process lifetime: the trail shows
// what was billed, when, and why. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	Timestamp  time.Time
	RunID      string
	Check      string
	Stage      string
	Epsilon    float64
	SpentTotal float64
	Detail     string
}
