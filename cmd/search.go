package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSearchCmd() *cobra.Command {
	var (
		url         string
		transaction string
		period      string
		province    string
		zone        string
		paginate    bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Discover item URLs behind one search",
		Long: `search fetches the results pages for one search and prints the item
URLs it finds, one per line. Use it to inspect what a full run would
harvest without fetching any items.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := searchURL(url, transaction, period, province, zone)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scraper, cleanup, err := buildScraper(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := scraper.Prime(ctx); err != nil {
				logger.Warn("site prime failed", zap.Error(err))
			}
			links, err := scraper.ScrapeSearch(ctx, target, paginate)
			if err != nil {
				return err
			}
			for _, link := range links {
				fmt.Fprintln(cmd.OutOrStdout(), link)
			}
			logger.Info("search done", zap.String("url", target), zap.Int("items", len(links)))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "first results page to search (overrides the search flags)")
	cmd.Flags().StringVar(&transaction, "transaction", "sale", "listing kind: sale, rent or room")
	cmd.Flags().StringVar(&period, "period", "week", "publication window: 24h, 48h, week or month")
	cmd.Flags().StringVar(&province, "province", "", "province to search")
	cmd.Flags().StringVar(&zone, "zone", "", "zone within the province (optional)")
	cmd.Flags().BoolVar(&paginate, "paginate", true, "follow the pagination past the first page")
	return cmd
}
