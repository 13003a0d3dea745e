package scrape

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	defaultResultsPerPage = 30
	defaultMaxPages       = 60
)

// PlannerConfig tunes pagination. Zero values fall back to the site's 30
// results per page and a 60-page cap.
type PlannerConfig struct {
	ResultsPerPage int
	MaxPages       int
}

// Plan is the immutable pagination decision for one search. PageURLs holds
// the URLs for pages 2..TotalPages; the first page has already been fetched
// by the time a plan exists.
type Plan struct {
	TotalResults int
	TotalPages   int
	Capped       bool
	PageURLs     []string
}

// PlanPages derives the pagination plan from the first page's result count.
// firstPageURL must end in "/"; page N lives at firstPageURL + "pagina-N.htm".
func PlanPages(firstPageURL string, totalResults int, cfg PlannerConfig, logger *zap.Logger) Plan {
	if cfg.ResultsPerPage <= 0 {
		cfg.ResultsPerPage = defaultResultsPerPage
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	total := (totalResults + cfg.ResultsPerPage - 1) / cfg.ResultsPerPage
	if total < 1 {
		total = 1
	}
	capped := total > cfg.MaxPages
	if capped {
		logger.Warn("pagination capped",
			zap.Int("total_results", totalResults),
			zap.Int("total_pages", total),
			zap.Int("max_pages", cfg.MaxPages),
		)
		total = cfg.MaxPages
	}

	urls := make([]string, 0, total-1)
	for page := 2; page <= total; page++ {
		urls = append(urls, fmt.Sprintf("%spagina-%d.htm", firstPageURL, page))
	}
	return Plan{
		TotalResults: totalResults,
		TotalPages:   total,
		Capped:       capped,
		PageURLs:     urls,
	}
}
