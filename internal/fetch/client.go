package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"idealista-harvester/internal/identity"
	"idealista-harvester/internal/metrics"
)

// Admitter grants permission to issue one request. *TokenBucket is the
// production implementation.
type Admitter interface {
	Admit(ctx context.Context) error
}

// ClientConfig tunes the retry loop.
type ClientConfig struct {
	MaxRetries int           // extra attempts after the first (default 3)
	Cooldown   time.Duration // fixed sleep after the first rate-limit signal (default 12h)
}

const (
	defaultMaxRetries = 3
	defaultCooldown   = 12 * time.Hour
)

// Client issues guarded GETs. Every attempt re-acquires admission from the
// bucket; the gate slot is held for the whole call. One browser identity is
// drawn per client and only its referer mutates, tracking the last URL
// fetched successfully.
//
// A call can legitimately block for hours: the first rate-limit signal
// (403, 429 or 503) triggers a single fixed cooldown before the one allowed
// retry. A second signal within the same call returns ErrRateLimited, which
// callers must treat as an order to stop the whole batch.
type Client struct {
	transport Transport
	bucket    Admitter
	gate      *Gate
	backoff   *Backoff
	session   *identity.Session
	logger    *zap.Logger
	cfg       ClientConfig
	sleep     pauseFunc
}

// NewClient wires a client. A nil session draws a fresh identity; a nil
// logger is replaced with a nop.
func NewClient(
	transport Transport,
	bucket Admitter,
	gate *Gate,
	backoff *Backoff,
	session *identity.Session,
	logger *zap.Logger,
	cfg ClientConfig,
) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if session == nil {
		session = identity.NewSession(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = NewGate(1)
	}
	if backoff == nil {
		backoff = NewBackoff(0, 0)
	}
	return &Client{
		transport: transport,
		bucket:    bucket,
		gate:      gate,
		backoff:   backoff,
		session:   session,
		logger:    logger,
		cfg:       cfg,
		sleep:     pause,
	}
}

// IdentityName reports which catalog bundle this client impersonates.
func (c *Client) IdentityName() string {
	return c.session.Name()
}

// Fetch retrieves one page. It returns the page on success, ErrRateLimited
// (wrapped) on a repeated rate-limit signal, a *TransientError once the
// retry budget is spent, or the ctx error on cancellation.
func (c *Client) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	var (
		attempt     int
		rateLimited bool
		lastErr     error
	)
	for {
		if err := c.bucket.Admit(ctx); err != nil {
			return nil, err
		}

		resp, err := c.transport.Fetch(ctx, Request{URL: url, Headers: c.session.Headers()})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &NetworkError{URL: url, Err: err}
			metrics.ObserveRequestError()
			c.logger.Warn("fetch attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)

		case resp.StatusCode == http.StatusOK:
			c.session.SetReferer(url)
			metrics.ObserveRequest(resp.StatusCode)
			metrics.ObserveOutcome(metrics.OutcomeSuccess)
			c.logger.Debug("fetched",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("took", resp.Duration),
				zap.Int("bytes", len(resp.Body)),
			)
			return &Page{Body: resp.Body, FinalURL: resp.URL, Duration: resp.Duration}, nil

		case IsRateLimitSignal(resp.StatusCode):
			metrics.ObserveRequest(resp.StatusCode)
			if rateLimited {
				metrics.ObserveOutcome(metrics.OutcomeRateLimited)
				c.logger.Error("rate limit signal repeated, aborting",
					zap.String("url", url),
					zap.Int("status", resp.StatusCode),
				)
				return nil, fmt.Errorf("fetch %s: %w", url, ErrRateLimited)
			}
			rateLimited = true
			metrics.ObserveRateLimitCooldown()
			c.logger.Warn("rate limit signal, entering cooldown",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.Duration("cooldown", c.cfg.Cooldown),
			)
			if err := c.sleep(ctx, c.cfg.Cooldown); err != nil {
				return nil, err
			}
			// One retry is owed after the cooldown; it does not consume
			// the transient budget.
			continue

		default:
			metrics.ObserveRequest(resp.StatusCode)
			lastErr = &StatusError{URL: url, Code: resp.StatusCode}
			c.logger.Warn("unexpected status",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt),
			)
		}

		if attempt >= c.cfg.MaxRetries {
			metrics.ObserveOutcome(metrics.OutcomeTransient)
			return nil, &TransientError{Attempts: attempt + 1, Err: lastErr}
		}
		delay := c.backoff.DelayFor(attempt)
		metrics.ObserveBackoff(delay)
		c.logger.Debug("backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		attempt++
	}
}

// Prime issues one admitted, identity-bearing request outside the retry
// loop. It warms the session cookie jar before real work; callers treat
// failures as advisory.
func (c *Client) Prime(ctx context.Context, url string) error {
	if err := c.gate.Acquire(ctx); err != nil {
		return err
	}
	defer c.gate.Release()

	if err := c.bucket.Admit(ctx); err != nil {
		return err
	}
	resp, err := c.transport.Fetch(ctx, Request{URL: url, Headers: c.session.Headers()})
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	metrics.ObserveRequest(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	c.session.SetReferer(url)
	return nil
}
