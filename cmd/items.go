package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newItemsCmd() *cobra.Command {
	var urlsFile string

	cmd := &cobra.Command{
		Use:   "items [url ...]",
		Short: "Fetch and parse individual listings",
		Long: `items fetches the given listing URLs through the governed engine and
prints each parsed record as a JSON line. URLs come from the arguments,
from --urls-file, or from stdin when neither is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := collectURLs(args, urlsFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no item urls given")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scraper, cleanup, err := buildScraper(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := scraper.ScrapeItems(ctx, urls)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return fmt.Errorf("encode record: %w", err)
				}
			}
			logger.Info("items done", zap.Int("attempted", len(urls)), zap.Int("parsed", len(records)))
			return nil
		},
	}

	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "file with one item URL per line")
	return cmd
}

func collectURLs(args []string, path string, stdin io.Reader) ([]string, error) {
	urls := make([]string, 0, len(args))
	urls = append(urls, args...)

	var src io.Reader
	switch {
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open urls file: %w", err)
		}
		defer f.Close()
		src = f
	case len(urls) == 0:
		src = stdin
	default:
		return urls, nil
	}

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}
