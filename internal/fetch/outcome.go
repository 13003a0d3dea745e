package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Page is the successful outcome of a governed fetch.
type Page struct {
	Body     []byte
	FinalURL string
	Duration time.Duration
}

// ErrRateLimited is returned when the site signals rate limiting twice within
// one call. It is a hard stop: callers must cease dispatching new work.
var ErrRateLimited = errors.New("rate limit signal repeated: stop the batch")

// NetworkError reports a transport-level failure (connection, timeout, TLS).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError reports a non-200 status outside the rate-limit set.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Code, e.URL)
}

// TransientError wraps the last failure after the retry budget is spent.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRateLimitSignal reports whether the status is one the site uses to
// throttle or block scrapers.
func IsRateLimitSignal(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
