package fetch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayWithinJitterBounds(t *testing.T) {
	t.Parallel()

	b := NewBackoff(32*time.Second, 64*time.Second)
	b.rng = rand.New(rand.NewSource(7))

	expected := []time.Duration{
		32 * time.Second, // attempt 0
		64 * time.Second, // attempt 1, already at the cap
		64 * time.Second, // attempt 2
		64 * time.Second, // attempt 5 stays capped
	}
	attempts := []int{0, 1, 2, 5}
	for i, attempt := range attempts {
		base := expected[i]
		for trial := 0; trial < 200; trial++ {
			d := b.DelayFor(attempt)
			require.GreaterOrEqual(t, d, base/2, "attempt %d", attempt)
			require.Less(t, d, base+base/2, "attempt %d", attempt)
		}
	}
}

func TestBackoffGrowsUntilCap(t *testing.T) {
	t.Parallel()

	b := NewBackoff(2*time.Second, 32*time.Second)
	b.rng = rand.New(rand.NewSource(11))

	bases := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second, // attempt 5 would be 64s, capped
	}
	for attempt, base := range bases {
		d := b.DelayFor(attempt)
		require.GreaterOrEqual(t, d, base/2, "attempt %d", attempt)
		require.Less(t, d, base+base/2, "attempt %d", attempt)
	}
}

func TestBackoffDefaults(t *testing.T) {
	t.Parallel()

	b := NewBackoff(0, 0)
	require.Equal(t, 32*time.Second, b.initial)
	require.Equal(t, 64*time.Second, b.max)
}

func TestBackoffMaxRaisedToInitial(t *testing.T) {
	t.Parallel()

	b := NewBackoff(64*time.Second, 8*time.Second)
	require.Equal(t, 64*time.Second, b.max, "a cap below the initial delay is meaningless")

	d := b.DelayFor(3)
	require.GreaterOrEqual(t, d, 32*time.Second)
	require.Less(t, d, 96*time.Second)
}

func TestBackoffNegativeAttemptTreatedAsFirst(t *testing.T) {
	t.Parallel()

	b := NewBackoff(2*time.Second, 32*time.Second)
	d := b.DelayFor(-4)
	require.GreaterOrEqual(t, d, 1*time.Second)
	require.Less(t, d, 3*time.Second)
}
