package scrape

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"idealista-harvester/internal/fetch"
)

// Fetcher is the governed fetch operation the scheduler fans out over.
// *fetch.Client is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Result is one completed fetch, delivered in completion order.
type Result struct {
	URL  string
	Page *fetch.Page
	Err  error
}

// SchedulerConfig tunes the fan-out. Zero values fall back to the defaults
// below.
type SchedulerConfig struct {
	Concurrency   int           // simultaneous fetch calls (default 1)
	CooldownEvery int           // completions between extra cooldowns (default 30)
	CooldownMin   time.Duration // lower bound of the cooldown draw (default 2s)
	CooldownMax   time.Duration // upper bound of the cooldown draw (default 10s)
}

const (
	defaultCooldownEvery = 30
	defaultCooldownMin   = 2 * time.Second
	defaultCooldownMax   = 10 * time.Second
)

// Scheduler fans a URL list out over the fetcher. Work is shuffled before
// dispatch so access patterns do not trace the site's own listing order,
// results are consumed as they complete, and every CooldownEvery
// completions it sleeps an extra randomized cooldown on top of the token
// bucket. A RateLimited outcome stops dispatch and is returned to the
// caller; per-item failures are delivered and left to the caller to skip.
type Scheduler struct {
	fetcher Fetcher
	cfg     SchedulerConfig
	logger  *zap.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler builds a scheduler. A nil logger is replaced with a nop.
func NewScheduler(fetcher Fetcher, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.CooldownEvery <= 0 {
		cfg.CooldownEvery = defaultCooldownEvery
	}
	if cfg.CooldownMin <= 0 {
		cfg.CooldownMin = defaultCooldownMin
	}
	if cfg.CooldownMax <= cfg.CooldownMin {
		cfg.CooldownMax = cfg.CooldownMin + (defaultCooldownMax - defaultCooldownMin)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   pause,
	}
}

// Run fetches every URL and hands each completed result to deliver, in
// completion order. It returns fetch.ErrRateLimited (wrapped in the result
// that carried it) as its own error when the site hard-stops the batch, or
// the ctx error on cancellation; otherwise nil. Rate-limited and cancelled
// results are not delivered.
func (s *Scheduler) Run(ctx context.Context, urls []string, deliver func(Result)) error {
	if len(urls) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := append([]string(nil), urls...)
	s.shuffle(work)

	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	results := make(chan Result)
	var wg sync.WaitGroup

	go func() {
		defer close(results)
		for _, url := range work {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(url string) {
				defer wg.Done()
				defer sem.Release(1)
				page, err := s.fetcher.Fetch(ctx, url)
				select {
				case results <- Result{URL: url, Page: page, Err: err}:
				case <-ctx.Done():
				}
			}(url)
		}
		wg.Wait()
	}()

	var (
		completed int
		hardStop  error
	)
	for res := range results {
		switch {
		case res.Err != nil && errors.Is(res.Err, fetch.ErrRateLimited):
			hardStop = res.Err
			s.logger.Error("batch hard-stopped by rate limiting",
				zap.String("url", res.URL),
				zap.Int("completed", completed),
				zap.Int("total", len(work)),
			)
			cancel()
			continue
		case res.Err != nil && errors.Is(res.Err, context.Canceled):
			continue
		}

		deliver(res)
		completed++
		if hardStop == nil && completed%s.cfg.CooldownEvery == 0 {
			delay := s.cooldownDelay()
			s.logger.Debug("batch cooldown",
				zap.Int("completed", completed),
				zap.Duration("delay", delay),
			)
			if err := s.sleep(ctx, delay); err != nil {
				cancel()
			}
		}
	}

	if hardStop != nil {
		return hardStop
	}
	return ctx.Err()
}

// Cooldown sleeps one randomized batch cooldown. The scraper uses it as a
// settling pause after pagination.
func (s *Scheduler) Cooldown(ctx context.Context) error {
	return s.sleep(ctx, s.cooldownDelay())
}

func (s *Scheduler) shuffle(urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(urls), func(i, j int) {
		urls[i], urls[j] = urls[j], urls[i]
	})
}

// cooldownDelay draws uniform(min, max) and doubles it, mirroring the
// per-request sleep scaled up for the batch boundary.
func (s *Scheduler) cooldownDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	span := s.cfg.CooldownMax - s.cfg.CooldownMin
	d := s.cfg.CooldownMin
	if span > 0 {
		d += time.Duration(s.rng.Int63n(int64(span)))
	}
	return 2 * d
}

// pause blocks for delay or until ctx is done.
func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
