package privacy

import (
	"errors"
	"math"
	"math/rand"
)

// Validation errors for mechanism parameters. Callers should reject bad
// epsilon values at input boundaries; these exist as a second line of defense.
var (
	ErrInvalidEpsilon     = errors.New("privacy: epsilon must be > 0")
	ErrInvalidSensitivity = errors.New("privacy: sensitivity must be > 0")
	ErrNegativeCount      = errors.New("privacy: raw count must be >= 0")
)

// Mechanism privatizes integer counts with Laplace noise. The random source
// is injected so tests can seed it and get reproducible draws. Not safe for
// concurrent use; the engine runs checks sequentially.
type Mechanism struct {
	rng *rand.Rand
}

// NewMechanism wraps the given source. Pass rand.NewSource(seed) in tests.
func NewMechanism(src rand.Source) *Mechanism {
	return &Mechanism{rng: rand.New(src)}
}

// Apply adds one Laplace(0, sensitivity/epsilon) draw to raw, rounds half
// away from zero (math.Round), and clamps the result at zero. Rounding mode
// is fixed so seeded runs reproduce bit-for-bit.
func (m *Mechanism) Apply(raw int, epsilon, sensitivity float64) (int, error) {
	if epsilon <= 0 {
		return 0, ErrInvalidEpsilon
	}
	if sensitivity <= 0 {
		return 0, ErrInvalidSensitivity
	}
	if raw < 0 {
		return 0, ErrNegativeCount
	}
	scale := sensitivity / epsilon
	noisy := math.Round(float64(raw) + m.sample(scale))
	if noisy < 0 {
		return 0, nil
	}
	return int(noisy), nil
}

// Count applies the mechanism with sensitivity 1, which holds for every
// counting query in this system: adding or removing one record moves any
// check's count by at most one.
func (m *Mechanism) Count(raw int, epsilon float64) (int, error) {
	return m.Apply(raw, epsilon, 1)
}

// sample draws Laplace(0, scale) as the difference of two exponentials,
// which avoids the log-of-zero edge of the inverse-CDF method.
func (m *Mechanism) sample(scale float64) float64 {
	return scale * (m.rng.ExpFloat64() - m.rng.ExpFloat64())
}
