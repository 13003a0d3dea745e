package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"idealista-harvester/internal/config"
	"idealista-harvester/internal/fetch"
	"idealista-harvester/internal/identity"
	"idealista-harvester/internal/scrape"
)

// buildScraper assembles the fetch engine and scraper from configuration.
// The returned cleanup tears the transport down and is safe to call once.
func buildScraper(cfg config.Config, logger *zap.Logger) (*scrape.Scraper, func(), error) {
	transport, cleanup, err := buildTransport(cfg.Fetch)
	if err != nil {
		return nil, nil, err
	}

	bucket := fetch.NewTokenBucket(fetch.TokenBucketConfig{
		Capacity: cfg.Fetch.BucketCapacity,
		FillRate: cfg.Fetch.FillRate(),
		PollMin:  cfg.Fetch.PollMin,
		PollMax:  cfg.Fetch.PollMax,
	})
	client := fetch.NewClient(
		transport,
		bucket,
		fetch.NewGate(cfg.Fetch.Concurrency),
		fetch.NewBackoff(cfg.Fetch.InitialBackoff, cfg.Fetch.MaxBackoff),
		identity.NewSession(nil),
		logger.Named("fetch"),
		fetch.ClientConfig{
			MaxRetries: cfg.Fetch.MaxRetries,
			Cooldown:   cfg.Fetch.RateLimitCooldown,
		},
	)
	logger.Info("fetch engine ready",
		zap.String("transport", cfg.Fetch.Transport),
		zap.String("identity", client.IdentityName()),
		zap.Duration("token_interval", cfg.Fetch.TokenInterval),
		zap.Int("concurrency", cfg.Fetch.Concurrency),
	)

	sched := scrape.NewScheduler(client, scrape.SchedulerConfig{
		Concurrency:   cfg.Fetch.Concurrency,
		CooldownEvery: cfg.Scrape.CooldownEvery,
		CooldownMin:   cfg.Scrape.CooldownMin,
		CooldownMax:   cfg.Scrape.CooldownMax,
	}, logger.Named("scheduler"))

	scraper := scrape.NewScraper(client, sched, scrape.PlannerConfig{
		ResultsPerPage: cfg.Scrape.ResultsPerPage,
		MaxPages:       cfg.Scrape.MaxPages,
	}, logger.Named("scrape"))
	return scraper, cleanup, nil
}

func buildTransport(cfg config.FetchConfig) (fetch.Transport, func(), error) {
	switch cfg.Transport {
	case "colly":
		return fetch.NewCollyTransport(fetch.CollyConfig{Timeout: cfg.Timeout}), func() {}, nil
	case "chromedp":
		rt, err := fetch.NewRenderTransport(fetch.RenderConfig{
			MaxParallel:       cfg.Concurrency,
			NavigationTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init headless transport: %w", err)
		}
		return rt, rt.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown fetch transport %q", cfg.Transport)
	}
}

// searchURL resolves the search target from an explicit URL flag or a
// SearchSpec assembled from the location flags.
func searchURL(explicit, transaction, period, province, zone string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return scrape.SearchSpec{
		Transaction: transaction,
		Period:      period,
		Province:    province,
		Zone:        zone,
	}.URL()
}
