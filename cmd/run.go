package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"idealista-harvester/internal/clock/system"
	"idealista-harvester/internal/config"
	"idealista-harvester/internal/id/uuid"
	"idealista-harvester/internal/ops"
	"idealista-harvester/internal/pipeline"
	"idealista-harvester/internal/progress"
	"idealista-harvester/internal/publish"
	"idealista-harvester/internal/runstore"
	"idealista-harvester/internal/storage"
	"idealista-harvester/internal/storage/gcs"
	"idealista-harvester/internal/storage/local"
	"idealista-harvester/internal/storage/memory"
	warehouse "idealista-harvester/internal/warehouse/bigquery"
)

func newRunCmd() *cobra.Command {
	var (
		url         string
		transaction string
		period      string
		province    string
		zone        string
		noJitter    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest one search end to end",
		Long: `run discovers every listing behind one search, fetches the items in
chunks, and writes each chunk to the blob store as parquet before the next
one starts. With the warehouse enabled, every uploaded chunk is appended to
the BigQuery table as well.

The target is either an explicit --url or a search assembled from
--transaction, --period, --province and --zone.`,
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

			uploader, err := buildUploader(ctx, cfg.Storage)
			if err != nil {
				return err
			}

			var loader pipeline.Loader
			if cfg.Warehouse.Enabled {
				bqClient, err := bigquery.NewClient(ctx, cfg.Warehouse.Project)
				if err != nil {
					return fmt.Errorf("init bigquery client: %w", err)
				}
				defer bqClient.Close()
				loader, err = warehouse.New(bqClient, cfg.Warehouse.Dataset, cfg.Warehouse.Table, logger.Named("warehouse"))
				if err != nil {
					return err
				}
			}

			var publisher publish.Publisher
			if cfg.PubSub.Enabled {
				psClient, err := pubsub.NewClient(ctx, cfg.PubSub.Project)
				if err != nil {
					return fmt.Errorf("init pubsub client: %w", err)
				}
				defer psClient.Close()
				ps, err := publish.NewPubSub(psClient.Topic(cfg.PubSub.Topic))
				if err != nil {
					return err
				}
				defer ps.Close()
				publisher = ps
			}

			var store runstore.Store
			if cfg.DB.DSN != "" {
				pg, err := runstore.NewPostgres(ctx, runstore.PostgresConfig{
					DSN:        cfg.DB.DSN,
					RunTable:   cfg.DB.RunTable,
					ChunkTable: cfg.DB.ChunkTable,
				})
				if err != nil {
					return err
				}
				defer pg.Close()
				store = pg
			}

			tracker := progress.NewTracker()
			if cfg.Ops.Enabled {
				srv := ops.NewServer(cfg.Ops.Listen, tracker, logger.Named("ops"))
				srv.Start()
				defer func() {
					shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutCtx)
				}()
			}

			jitter := cfg.Pipeline.StartJitterMax
			if noJitter {
				jitter = 0
			}
			runner := pipeline.NewRunner(
				scraper,
				uploader,
				loader,
				publisher,
				store,
				tracker,
				system.New(),
				uuid.New(),
				logger.Named("pipeline"),
				pipeline.Config{
					Transaction:    transaction,
					ChunkSize:      cfg.Pipeline.ChunkSize,
					TimeBudget:     cfg.Pipeline.TimeBudget,
					StartJitterMax: jitter,
				},
			)

			summary, err := runner.Run(ctx, target)
			logger.Info("run finished",
				zap.String("run_id", summary.RunID),
				zap.String("status", summary.Status),
				zap.Int("chunks", summary.ChunksDone),
				zap.Int("items", summary.ItemsAttempted),
				zap.Int("records", summary.RecordsParsed),
				zap.Int64("rows_loaded", summary.RowsLoaded),
				zap.Duration("elapsed", summary.Elapsed),
			)
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "first results page to harvest (overrides the search flags)")
	cmd.Flags().StringVar(&transaction, "transaction", "sale", "listing kind: sale, rent or room")
	cmd.Flags().StringVar(&period, "period", "week", "publication window: 24h, 48h, week or month")
	cmd.Flags().StringVar(&province, "province", "", "province to search")
	cmd.Flags().StringVar(&zone, "zone", "", "zone within the province (optional)")
	cmd.Flags().BoolVar(&noJitter, "no-jitter", false, "skip the randomized pre-run sleep")
	return cmd
}

func buildUploader(ctx context.Context, cfg config.StorageConfig) (*storage.Uploader, error) {
	var (
		store storage.BlobStore
		err   error
	)
	switch cfg.Provider {
	case "memory":
		store = memory.NewBlobStore()
	case "local":
		store, err = local.New(cfg.BaseDir)
	case "gcs":
		var client *gcstorage.Client
		client, err = gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err = gcs.New(client, cfg.Bucket)
	default:
		err = fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return storage.NewUploader(store, cfg.Prefix), nil
}
