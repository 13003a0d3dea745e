package fetch

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"idealista-harvester/internal/metrics"
)

// TokenBucketConfig tunes the admission limiter. Zero values fall back to
// the defaults below.
type TokenBucketConfig struct {
	Capacity float64       // maximum stored tokens (default 1)
	FillRate float64       // tokens per second (default 1/27)
	PollMin  time.Duration // lower bound of the retry sleep (default 1s)
	PollMax  time.Duration // upper bound of the retry sleep (default 5s)
}

const (
	defaultCapacity = 1.0
	defaultFillRate = 1.0 / 27.0
	defaultPollMin  = 1 * time.Second
	defaultPollMax  = 5 * time.Second
)

// TokenBucket governs request admission. It refills fractionally on the
// monotonic clock and admits a caller only when a full token is stored.
// Waiters poll with randomized sleeps instead of queueing, so there is no
// ordering guarantee across concurrent callers; the randomization exists to
// avoid synchronized retry storms.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	fillRate float64
	tokens   float64
	last     time.Time

	pollMin time.Duration
	pollMax time.Duration
	rng     *rand.Rand

	now   func() time.Time
	sleep pauseFunc
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(cfg TokenBucketConfig) *TokenBucket {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.FillRate <= 0 {
		cfg.FillRate = defaultFillRate
	}
	if cfg.PollMin <= 0 {
		cfg.PollMin = defaultPollMin
	}
	if cfg.PollMax <= cfg.PollMin {
		cfg.PollMax = cfg.PollMin + (defaultPollMax - defaultPollMin)
	}
	b := &TokenBucket{
		capacity: cfg.Capacity,
		fillRate: cfg.FillRate,
		tokens:   cfg.Capacity,
		pollMin:  cfg.PollMin,
		pollMax:  cfg.PollMax,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		sleep:    pause,
	}
	b.last = b.now()
	return b
}

// TryAdmit refills the bucket and consumes one token when available.
func (b *TokenBucket) TryAdmit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Admit blocks until a token is granted or ctx ends. Between checks it
// sleeps a random duration in [PollMin, PollMax).
func (b *TokenBucket) Admit(ctx context.Context) error {
	start := b.now()
	for {
		if b.TryAdmit() {
			metrics.ObserveAdmissionWait(b.now().Sub(start))
			return nil
		}
		if err := b.sleep(ctx, b.pollDelay()); err != nil {
			return err
		}
	}
}

// Tokens reports the stored tokens after a refill. Intended for tests and
// the ops snapshot.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// refillLocked mints elapsed*fillRate tokens, capped at capacity. Elapsed is
// clamped at zero so a clock that misbehaves never destroys tokens.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last)
	if elapsed < 0 {
		elapsed = 0
	}
	b.last = now
	b.tokens = math.Min(b.capacity, b.tokens+elapsed.Seconds()*b.fillRate)
}

func (b *TokenBucket) pollDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	span := b.pollMax - b.pollMin
	if span <= 0 {
		return b.pollMin
	}
	return b.pollMin + time.Duration(b.rng.Int63n(int64(span)))
}
