// Package cmd defines the harvester's CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"idealista-harvester/internal/config"
	"idealista-harvester/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Rate-governed listing harvester for idealista.com",
		Long: `harvester retrieves property listings from a site that rate-limits
aggressively and blocks clients that look like bots. Every request flows
through a token bucket, a browser-identity session, and a retry loop that
knows the difference between a transient failure and a ban.`,

		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; HARVESTER_* env vars override)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newItemsCmd())
	return cmd
}

// Execute is the entry point called by main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
