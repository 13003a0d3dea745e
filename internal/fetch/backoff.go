package fetch

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 32 * time.Second
	defaultMaxBackoff     = 64 * time.Second
)

// Backoff computes jittered exponential delays for transient retries.
// Rate-limit cooldowns do not use it; they have their own fixed duration.
type Backoff struct {
	initial time.Duration
	max     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff builds a policy. Non-positive arguments fall back to the
// 32s/64s defaults.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	if max <= 0 {
		max = defaultMaxBackoff
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial: initial,
		max:     max,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DelayFor returns min(initial*2^attempt, max) scaled by a jitter factor
// uniform in [0.5, 1.5).
func (b *Backoff) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(b.initial) * math.Pow(2, float64(attempt))
	if base > float64(b.max) {
		base = float64(b.max)
	}
	return time.Duration(base * b.jitter())
}

func (b *Backoff) jitter() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return 0.5 + b.rng.Float64()
}
