package privacy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountRejectsBadEpsilon(t *testing.T) {
	m := NewMechanism(rand.NewSource(1))

	_, err := m.Count(10, 0)
	assert.ErrorIs(t, err, ErrInvalidEpsilon)

	_, err = m.Count(10, -1.5)
	assert.ErrorIs(t, err, ErrInvalidEpsilon)
}

func TestApplyRejectsBadSensitivity(t *testing.T) {
	m := NewMechanism(rand.NewSource(1))

	_, err := m.Apply(10, 1.0, 0)
	assert.ErrorIs(t, err, ErrInvalidSensitivity)
}

func TestApplyRejectsNegativeCount(t *testing.T) {
	m := NewMechanism(rand.NewSource(1))

	_, err := m.Count(-1, 1.0)
	assert.ErrorIs(t, err, ErrNegativeCount)
}

// Output must be non-negative for any draw, including when the raw count is
// already zero and the noise is heavily negative.
func TestCountNeverNegative(t *testing.T) {
	m := NewMechanism(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		out, err := m.Count(0, 0.1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out, 0)
	}
}

// A fixed seed must reproduce the same privatized output for the same
// (raw, epsilon) inputs.
func TestSeededDrawsAreDeterministic(t *testing.T) {
	a := NewMechanism(rand.NewSource(7))
	b := NewMechanism(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		x, err := a.Count(100, 1.0)
		require.NoError(t, err)
		y, err := b.Count(100, 1.0)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

// As epsilon grows the noise scale goes to zero, so the output converges on
// the raw count.
func TestLargeEpsilonReturnsRawCount(t *testing.T) {
	m := NewMechanism(rand.NewSource(3))

	for i := 0; i < 200; i++ {
		out, err := m.Count(250, 1e9)
		require.NoError(t, err)
		assert.Equal(t, 250, out)
	}
}

// Statistical sanity check against the Laplace distribution: at epsilon 1
// and sensitivity 1 the noise has mean 0 and scale 1, so the sample mean of
// many draws sits close to the raw count and the tails stay bounded. The
// bound of 40 has failure probability on the order of 1e-17 per draw.
func TestNoiseDistribution(t *testing.T) {
	m := NewMechanism(rand.NewSource(99))
	const (
		raw     = 100
		samples = 4000
	)

	sum := 0.0
	for i := 0; i < samples; i++ {
		out, err := m.Count(raw, 1.0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, out, 0)
		require.LessOrEqual(t, out, raw+40)
		require.GreaterOrEqual(t, out, raw-40)
		sum += float64(out)
	}

	mean := sum / samples
	// Standard error of the mean is sqrt(2/samples) ~ 0.022; a tolerance of
	// 0.5 gives a wide margin while still catching a mis-scaled mechanism.
	assert.InDelta(t, float64(raw), mean, 0.5)
	assert.False(t, math.IsNaN(mean))
}
