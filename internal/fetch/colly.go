package fetch

import (
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the colly-backed transport.
type CollyConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int
}

// CollyTransport fetches pages with a colly collector. The base collector is
// cloned per request so hooks never leak between calls, while the shared
// backend keeps one cookie jar and connection pool for the whole session.
// Revisits are allowed: the retry loop fetches the same URL repeatedly.
type CollyTransport struct {
	cfg  CollyConfig
	base *colly.Collector
}

// NewCollyTransport builds the default transport.
func NewCollyTransport(cfg CollyConfig) *CollyTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	return &CollyTransport{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET. Non-200 statuses are returned in the
// Response, not as errors; only transport-level failures error out.
func (t *CollyTransport) Fetch(ctx context.Context, req Request) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	start := time.Now()

	collector := t.base.Clone()
	t.configureHooks(collector, req, start, &result, &fetchErr)

	if err := t.runCollector(ctx, collector, req.URL, &fetchErr); err != nil {
		return Response{}, err
	}

	body, err := decodeBody(result.Headers, result.Body)
	if err != nil {
		return Response{}, fmt.Errorf("decode body from %s: %w", req.URL, err)
	}
	result.Body = body
	return result, nil
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

func (t *CollyTransport) configureHooks(
	hooks collectorHooks,
	req Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		applyHeaders(req.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (t *CollyTransport) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", url, *fetchErr)
		}
		return nil
	}
}

func applyHeaders(h http.Header, r *colly.Request) {
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		r.Headers.Set(key, values[0])
		for _, v := range values[1:] {
			r.Headers.Add(key, v)
		}
	}
}

// decodeBody handles encodings the collector backend leaves alone: gzip is
// already transparent, brotli and deflate are not.
func decodeBody(headers http.Header, body []byte) ([]byte, error) {
	if len(headers) == 0 || len(body) == 0 {
		return body, nil
	}
	switch strings.ToLower(headers.Get("Content-Encoding")) {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "deflate":
		rc := flate.NewReader(bytes.NewReader(body))
		defer rc.Close() //nolint:errcheck // read error surfaces below
		return io.ReadAll(rc)
	default:
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
