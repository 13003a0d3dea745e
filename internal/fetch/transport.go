package fetch

import (
	"context"
	"net/http"
	"time"
)

// Request is a single page retrieval order.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw result of one HTTP exchange. Body is fully read and
// decoded; URL is the final URL after redirects.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Transport executes one GET exchange. Implementations must honor ctx
// cancellation and return an error only for transport-level failures;
// non-200 statuses are reported through Response.StatusCode.
type Transport interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
