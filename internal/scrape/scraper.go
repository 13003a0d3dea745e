package scrape

import (
	"context"
	"time"

	"go.uber.org/zap"

	"idealista-harvester/internal/listing"
	"idealista-harvester/internal/metrics"
	"idealista-harvester/internal/parse"
)

// Scraper exposes the two site operations: resolving a search into item
// URLs and fetching items into records. All traffic flows through one
// fetcher, so one token bucket and one browser identity govern the whole
// session.
type Scraper struct {
	fetcher Fetcher
	sched   *Scheduler
	planner PlannerConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewScraper wires the scraper. A nil logger is replaced with a nop.
func NewScraper(fetcher Fetcher, sched *Scheduler, planner PlannerConfig, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		fetcher: fetcher,
		sched:   sched,
		planner: planner,
		logger:  logger,
		now:     time.Now,
	}
}

// Prime fetches the site root once to pick up session cookies before real
// work starts. Failures are advisory; the caller logs and continues.
func (s *Scraper) Prime(ctx context.Context) error {
	type primer interface {
		Prime(ctx context.Context, url string) error
	}
	p, ok := s.fetcher.(primer)
	if !ok {
		return nil
	}
	return p.Prime(ctx, siteRoot+"/")
}

// ScrapeSearch fetches a search results page and returns the item URLs on
// it. With paginate set, it plans the remaining pages from the first page's
// result count and fetches them all through the scheduler, collecting links
// in completion order. A garbled result count hard-stops the search; a page
// that fails to fetch or parse is logged and skipped.
func (s *Scraper) ScrapeSearch(ctx context.Context, url string, paginate bool) ([]string, error) {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	metrics.ObservePage("search")

	links, err := parse.SearchLinks(page.Body, url)
	if err != nil {
		return nil, err
	}
	s.logger.Info("search page fetched",
		zap.String("url", url),
		zap.Int("links", len(links)),
	)
	if !paginate {
		return links, nil
	}

	total, err := parse.TotalResults(page.Body, url)
	if err != nil {
		metrics.ObserveParseFailure("search")
		return nil, err
	}
	plan := PlanPages(url, total, s.planner, s.logger)
	s.logger.Info("pagination planned",
		zap.Int("total_results", plan.TotalResults),
		zap.Int("total_pages", plan.TotalPages),
		zap.Bool("capped", plan.Capped),
	)
	if len(plan.PageURLs) == 0 {
		return links, nil
	}

	err = s.sched.Run(ctx, plan.PageURLs, func(res Result) {
		if res.Err != nil {
			s.logger.Warn("search page failed",
				zap.String("url", res.URL),
				zap.Error(res.Err),
			)
			return
		}
		metrics.ObservePage("search")
		pageLinks, perr := parse.SearchLinks(res.Page.Body, res.URL)
		if perr != nil {
			metrics.ObserveParseFailure("search")
			s.logger.Warn("search page unparseable",
				zap.String("url", res.URL),
				zap.Error(perr),
			)
			return
		}
		links = append(links, pageLinks...)
	})
	if err != nil {
		return nil, err
	}

	// Let the burst of pagination settle before the caller moves on to
	// item pages.
	if err := s.sched.Cooldown(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("search scraped",
		zap.String("url", url),
		zap.Int("pages", plan.TotalPages),
		zap.Int("links", len(links)),
	)
	return links, nil
}

// ScrapeItems fetches every item page and parses it into a record. Fetch
// and parse failures are logged and skipped; a rate-limit hard stop aborts
// and surfaces as fetch.ErrRateLimited.
func (s *Scraper) ScrapeItems(ctx context.Context, urls []string) ([]listing.Record, error) {
	records := make([]listing.Record, 0, len(urls))
	err := s.sched.Run(ctx, urls, func(res Result) {
		if res.Err != nil {
			s.logger.Warn("item fetch failed",
				zap.String("url", res.URL),
				zap.Error(res.Err),
			)
			return
		}
		metrics.ObservePage("item")
		rec, perr := parse.Item(res.Page.Body, res.URL, s.now().UTC())
		if perr != nil {
			metrics.ObserveParseFailure("item")
			s.logger.Warn("item page unparseable",
				zap.String("url", res.URL),
				zap.Error(perr),
			)
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return records, err
	}
	s.logger.Info("items scraped",
		zap.Int("attempted", len(urls)),
		zap.Int("parsed", len(records)),
	)
	return records, nil
}
