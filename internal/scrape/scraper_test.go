package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"idealista-harvester/internal/fetch"
	"idealista-harvester/internal/parse"
)

const firstSearchPage = `<html><body>
<h1 id="h1-container">62 anuncios en Toledo</h1>
<article class="item"><a class="item-link" href="/inmueble/1/">a</a></article>
<article class="item"><a class="item-link" href="/inmueble/2/">b</a></article>
</body></html>`

const laterSearchPage = `<html><body>
<h1 id="h1-container">62 anuncios en Toledo</h1>
<article class="item"><a class="item-link" href="/inmueble/%d0/">c</a></article>
</body></html>`

const itemPage = `<html><body>
<span class="main-info__title-main">Piso en venta en calle Ancha</span>
<span class="main-info__title-minor">Casco, Toledo</span>
<span class="info-data-price"><span>120.000</span> €</span>
</body></html>`

// pageFetcher serves bodies keyed by URL and fails on everything else.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func (f *pageFetcher) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.TransientError{Attempts: 1, Err: errors.New("no such page")}
	}
	return &fetch.Page{Body: []byte(body), FinalURL: url}, nil
}

func (f *pageFetcher) uniqueFetches() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		out[k] = v
	}
	return out
}

func fastScheduler(fetcher Fetcher) *Scheduler {
	sched := NewScheduler(fetcher, SchedulerConfig{Concurrency: 1, CooldownEvery: 1000}, nil)
	sched.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return sched
}

func TestScrapeSearchSinglePage(t *testing.T) {
	t.Parallel()

	first := "https://www.idealista.com/venta-viviendas/toledo-provincia/"
	fetcher := &pageFetcher{pages: map[string]string{first: firstSearchPage}}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)

	links, err := scraper.ScrapeSearch(context.Background(), first, false)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.idealista.com/inmueble/1/",
		"https://www.idealista.com/inmueble/2/",
	}, links)
	require.Equal(t, map[string]int{first: 1}, fetcher.uniqueFetches(), "no pagination without paginate")
}

func TestScrapeSearchPaginates(t *testing.T) {
	t.Parallel()

	first := "https://www.idealista.com/venta-viviendas/toledo-provincia/"
	pages := map[string]string{first: firstSearchPage}
	// 62 results at 30 per page: pages 2 and 3.
	for _, n := range []int{2, 3} {
		pages[fmt.Sprintf("%spagina-%d.htm", first, n)] = strings.ReplaceAll(laterSearchPage, "%d", fmt.Sprint(n))
	}
	fetcher := &pageFetcher{pages: pages}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)

	links, err := scraper.ScrapeSearch(context.Background(), first, true)
	require.NoError(t, err)
	require.Len(t, links, 4)
	require.Contains(t, links, "https://www.idealista.com/inmueble/20/")
	require.Contains(t, links, "https://www.idealista.com/inmueble/30/")
	for url, n := range fetcher.uniqueFetches() {
		require.Equal(t, 1, n, "url %s fetched more than once", url)
	}
}

func TestScrapeSearchCountFailureHardStops(t *testing.T) {
	t.Parallel()

	first := "https://www.idealista.com/venta-viviendas/toledo-provincia/"
	fetcher := &pageFetcher{pages: map[string]string{
		first: `<html><body><article class="item"><a class="item-link" href="/inmueble/1/">a</a></article></body></html>`,
	}}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)

	_, err := scraper.ScrapeSearch(context.Background(), first, true)
	var perr *parse.Error
	require.ErrorAs(t, err, &perr)
}

func TestScrapeSearchSkipsBrokenPages(t *testing.T) {
	t.Parallel()

	first := "https://www.idealista.com/venta-viviendas/toledo-provincia/"
	pages := map[string]string{
		first: firstSearchPage,
		// pagina-2.htm is missing: its fetch fails and is skipped.
		first + "pagina-3.htm": strings.ReplaceAll(laterSearchPage, "%d", "3"),
	}
	fetcher := &pageFetcher{pages: pages}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)

	links, err := scraper.ScrapeSearch(context.Background(), first, true)
	require.NoError(t, err, "a failed page does not abort the search")
	require.Len(t, links, 3)
}

func TestScrapeItems(t *testing.T) {
	t.Parallel()

	pages := make(map[string]string)
	var urls []string
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("https://www.idealista.com/inmueble/%d/", i)
		urls = append(urls, url)
		pages[url] = itemPage
	}
	// One item page is garbage: parsed out, not fatal.
	pages[urls[4]] = "<html><body>vacío</body></html>"

	fetcher := &pageFetcher{pages: pages}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)

	records, err := scraper.ScrapeItems(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for url, n := range fetcher.uniqueFetches() {
		require.Equal(t, 1, n, "url %s fetched more than once", url)
	}
	for _, rec := range records {
		require.Equal(t, "Piso en venta en calle Ancha", rec.Title)
		require.Equal(t, 120000, rec.Price)
	}
}

func TestScrapeItemsIdempotent(t *testing.T) {
	t.Parallel()

	url := "https://www.idealista.com/inmueble/9/"
	fetcher := &pageFetcher{pages: map[string]string{url: itemPage}}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)
	at := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	scraper.now = func() time.Time { return at }

	first, err := scraper.ScrapeItems(context.Background(), []string{url})
	require.NoError(t, err)
	second, err := scraper.ScrapeItems(context.Background(), []string{url})
	require.NoError(t, err)
	require.Equal(t, first, second, "parsing is a pure function of the document")
}

func TestScrapeItemsPropagatesRateLimit(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{limitAfter: 0}
	scraper := NewScraper(fetcher, fastScheduler(fetcher), PlannerConfig{}, nil)

	_, err := scraper.ScrapeItems(context.Background(), urlList(5))
	require.ErrorIs(t, err, fetch.ErrRateLimited)
}
