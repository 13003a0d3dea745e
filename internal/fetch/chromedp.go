package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// RenderConfig controls the headless transport.
type RenderConfig struct {
	MaxParallel       int
	NavigationTimeout time.Duration
}

// RenderTransport fetches pages through headless Chrome and returns the
// rendered DOM. It is the transport of choice when the site serves listing
// data behind a JavaScript wall; colly remains the default.
type RenderTransport struct {
	cfg         RenderConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewRenderTransport builds the headless transport and its shared browser
// allocator. Close must be called to tear the allocator down.
func NewRenderTransport(cfg RenderConfig) (*RenderTransport, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &RenderTransport{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (t *RenderTransport) Close() {
	t.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM.
func (t *RenderTransport) Fetch(ctx context.Context, req Request) (Response, error) {
	if err := t.acquire(ctx); err != nil {
		return Response{}, err
	}
	defer t.release()

	taskCtx, taskCancel := chromedp.NewContext(t.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, t.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation into the browser task.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	meta := newRenderMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		headerSetupAction(req.Headers),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return Response{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, responseURL := meta.snapshot(req.URL, finalURL)
	return Response{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

func headerSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := headers.Get("User-Agent"); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		extra := toNetworkHeaders(headers)
		if len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func toNetworkHeaders(headers http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range headers {
		if len(values) == 0 || http.CanonicalHeaderKey(key) == "User-Agent" {
			continue
		}
		out[key] = values[0]
	}
	return out
}

func (t *RenderTransport) acquire(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	select {
	case t.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (t *RenderTransport) release() {
	if t.limiter == nil {
		return
	}
	select {
	case <-t.limiter:
	default:
	}
}

// renderMeta captures the status, headers and URL of the document response
// observed over the DevTools protocol while the page loads.
type renderMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newRenderMeta() *renderMeta {
	return &renderMeta{headers: http.Header{}}
}

func (m *renderMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.url = resp.Response.URL
	m.mu.Unlock()
}

// snapshot falls back to the navigated URL and a 200 status when no document
// response event was observed (cached navigations can skip it).
func (m *renderMeta) snapshot(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.url
	if url == "" {
		url = finalURL
	}
	if url == "" {
		url = requestURL
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, m.headers.Clone(), url
}
