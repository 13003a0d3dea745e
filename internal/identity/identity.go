// Package identity provides the fixed catalog of browser identities the
// harvester impersonates and the per-session header state drawn from it.
package identity

import (
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Bundle is one browser identity: a name, its share of real-world traffic,
// and the complete header set sent with every request made under it.
type Bundle struct {
	Name    string
	Weight  float64
	Headers map[string]string
}

// catalog mirrors observed desktop traffic shares for the Spanish market.
var catalog = []Bundle{
	{
		Name:   "windows-chrome",
		Weight: 0.64,
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "es-ES,es;q=0.9",
			"Cache-Control":             "max-age=0",
			"Referer":                   "https://www.google.es/",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
		},
	},
	{
		Name:   "windows-firefox",
		Weight: 0.10,
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "es-ES,es;q=0.8,en-US;q=0.5,en;q=0.3",
			"Referer":                   "https://www.google.es/",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
		},
	},
	{
		Name:   "macos-chrome",
		Weight: 0.10,
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "es-ES,es;q=0.9",
			"Cache-Control":             "max-age=0",
			"Referer":                   "https://www.google.es/",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
		},
	},
	{
		Name:   "macos-safari",
		Weight: 0.13,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"Accept-Language": "es-ES,es;q=0.9",
			"Referer":         "https://www.google.es/",
			"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		},
	},
	{
		Name:   "macos-firefox",
		Weight: 0.03,
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "es-ES,es;q=0.8,en-US;q=0.5,en;q=0.3",
			"Dnt":                       "1",
			"Referer":                   "https://www.google.es/",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:128.0) Gecko/20100101 Firefox/128.0",
		},
	},
}

// Catalog returns a copy of the identity catalog.
func Catalog() []Bundle {
	out := make([]Bundle, len(catalog))
	copy(out, catalog)
	return out
}

// Session is the identity state of one fetch client. The bundle is drawn once
// at construction; only the referer mutates afterwards, tracking the last URL
// the client fetched successfully.
type Session struct {
	mu      sync.Mutex
	bundle  Bundle
	referer string
}

// NewSession draws a weighted random bundle from the catalog. rng may be nil,
// in which case a time-seeded source is used.
func NewSession(rng *rand.Rand) *Session {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b := pick(rng)
	return &Session{bundle: b, referer: b.Headers["Referer"]}
}

// Name reports which catalog bundle this session impersonates.
func (s *Session) Name() string {
	return s.bundle.Name
}

// Headers returns a fresh header set for the next request. The caller owns
// the returned map; mutating it does not affect the session or the catalog.
func (s *Session) Headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := make(http.Header, len(s.bundle.Headers))
	for k, v := range s.bundle.Headers {
		h.Set(k, v)
	}
	h.Set("Referer", s.referer)
	return h
}

// Referer returns the session's current referer.
func (s *Session) Referer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referer
}

// SetReferer records url as the referer for subsequent requests.
func (s *Session) SetReferer(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referer = url
}

func pick(rng *rand.Rand) Bundle {
	total := 0.0
	for _, b := range catalog {
		total += b.Weight
	}
	f := rng.Float64() * total
	for _, b := range catalog {
		if f < b.Weight {
			return b
		}
		f -= b.Weight
	}
	return catalog[len(catalog)-1]
}
