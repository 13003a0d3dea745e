// Package pipeline runs the full harvest: search discovery, chunked item
// fetching, normalization, parquet upload, warehouse load, and the run
// bookkeeping around it all.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"idealista-harvester/internal/fetch"
	"idealista-harvester/internal/listing"
	"idealista-harvester/internal/metrics"
	"idealista-harvester/internal/normalize"
	"idealista-harvester/internal/progress"
	"idealista-harvester/internal/publish"
	"idealista-harvester/internal/runstore"
)

// Scraper is the site-facing side of the pipeline.
type Scraper interface {
	Prime(ctx context.Context) error
	ScrapeSearch(ctx context.Context, url string, paginate bool) ([]string, error)
	ScrapeItems(ctx context.Context, urls []string) ([]listing.Record, error)
}

// Uploader writes one chunk's rows to the blob store.
type Uploader interface {
	Upload(ctx context.Context, rows []listing.Row, runID string, chunk int, day time.Time) (string, error)
}

// Loader appends an uploaded object to the warehouse table.
type Loader interface {
	Load(ctx context.Context, uri string) (int64, error)
}

// Clock supplies the time; the system clock in production.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Terminal run statuses.
const (
	StatusComplete    = "complete"
	StatusBudgetSpent = "budget_exhausted"
	StatusRateLimited = "rate_limited"
	StatusFailed      = "failed"
)

// Config tunes the chunked run.
type Config struct {
	Transaction    string        // "sale", "rent" or "room"; labels rows and events
	ChunkSize      int           // items per chunk (default 30)
	TimeBudget     time.Duration // wall-clock ceiling checked between chunks (default 18h)
	StartJitterMax time.Duration // upper bound of the optional pre-run sleep (0 disables)
}

const (
	defaultChunkSize  = 30
	defaultTimeBudget = 18 * time.Hour
)

// Summary is what a run reports back, complete or not.
type Summary struct {
	RunID          string
	Status         string
	ChunksDone     int
	ItemsAttempted int
	RecordsParsed  int
	RowsLoaded     int64
	Elapsed        time.Duration
}

// Runner drives one harvest end to end. Chunks are processed strictly one
// at a time: a chunk is fetched, normalized, uploaded, and loaded before
// the next one starts, so an abort never leaves half-finished chunks
// behind.
type Runner struct {
	scraper   Scraper
	uploader  Uploader
	loader    Loader
	publisher publish.Publisher
	store     runstore.Store
	tracker   *progress.Tracker
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	cfg       Config

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner wires a runner. Loader, publisher, store and tracker may be
// nil; the corresponding steps are skipped.
func NewRunner(
	scraper Scraper,
	uploader Uploader,
	loader Loader,
	publisher publish.Publisher,
	store runstore.Store,
	tracker *progress.Tracker,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
	cfg Config,
) *Runner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = defaultTimeBudget
	}
	if store == nil {
		store = runstore.Noop{}
	}
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scraper:   scraper,
		uploader:  uploader,
		loader:    loader,
		publisher: publisher,
		store:     store,
		tracker:   tracker,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     pause,
	}
}

// Run harvests one search end to end and reports the summary. The summary
// is valid even when err is non-nil: it carries the partial counts.
func (r *Runner) Run(ctx context.Context, searchURL string) (Summary, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("mint run id: %w", err)
	}
	start := r.clock.Now()
	sum := Summary{RunID: runID, Status: StatusComplete}
	r.tracker.Start(runID, searchURL, start)

	if err := r.store.StartRun(ctx, runstore.Run{
		ID:          runID,
		SearchURL:   searchURL,
		Transaction: r.cfg.Transaction,
		StartedAt:   start,
	}); err != nil {
		return sum, fmt.Errorf("record run start: %w", err)
	}

	if r.cfg.StartJitterMax > 0 {
		delay := time.Duration(r.rng.Int63n(int64(r.cfg.StartJitterMax)))
		r.logger.Info("start jitter", zap.String("run_id", runID), zap.Duration("delay", delay))
		if err := r.sleep(ctx, delay); err != nil {
			return r.finish(ctx, &sum, searchURL, start, err)
		}
	}

	if err := r.scraper.Prime(ctx); err != nil {
		r.logger.Warn("warm-up fetch failed", zap.Error(err))
	}

	urls, err := r.scraper.ScrapeSearch(ctx, searchURL, true)
	if err != nil {
		return r.finish(ctx, &sum, searchURL, start, fmt.Errorf("scrape search: %w", err))
	}
	r.logger.Info("search resolved",
		zap.String("run_id", runID),
		zap.Int("items", len(urls)),
		zap.Int("chunks", (len(urls)+r.cfg.ChunkSize-1)/r.cfg.ChunkSize),
	)

	err = r.processChunks(ctx, &sum, start, searchURL, urls)
	return r.finish(ctx, &sum, searchURL, start, err)
}

func (r *Runner) processChunks(ctx context.Context, sum *Summary, start time.Time, searchURL string, urls []string) error {
	for i, chunk := range chunks(urls, r.cfg.ChunkSize) {
		if elapsed := r.clock.Now().Sub(start); elapsed > r.cfg.TimeBudget {
			r.logger.Warn("time budget exhausted",
				zap.String("run_id", sum.RunID),
				zap.Duration("elapsed", elapsed),
				zap.Int("chunks_done", sum.ChunksDone),
			)
			sum.Status = StatusBudgetSpent
			return nil
		}
		if err := r.processChunk(ctx, sum, i, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) processChunk(ctx context.Context, sum *Summary, index int, urls []string) error {
	sum.ItemsAttempted += len(urls)
	r.tracker.AddItems(len(urls))

	records, err := r.scraper.ScrapeItems(ctx, urls)
	sum.RecordsParsed += len(records)
	r.tracker.AddRecords(len(records))
	if err != nil {
		return fmt.Errorf("chunk %d: %w", index, err)
	}
	if len(records) == 0 {
		r.logger.Warn("chunk yielded no records, skipping",
			zap.String("run_id", sum.RunID),
			zap.Int("chunk", index),
			zap.Int("items", len(urls)),
		)
		return nil
	}

	rows := make([]listing.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, normalize.Record(rec, r.cfg.Transaction))
	}

	now := r.clock.Now()
	uri, err := r.uploader.Upload(ctx, rows, sum.RunID, index, now)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", index, err)
	}

	var loaded int64
	if r.loader != nil {
		loaded, err = r.loader.Load(ctx, uri)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}
	}

	sum.ChunksDone++
	sum.RowsLoaded += loaded
	r.tracker.ChunkDone()
	r.tracker.AddRows(loaded)
	metrics.ObserveChunk()
	metrics.AddRowsLoaded(loaded)

	if err := r.store.RecordChunk(ctx, runstore.Chunk{
		RunID:      sum.RunID,
		Index:      index,
		Items:      len(urls),
		Records:    len(records),
		RowsLoaded: loaded,
		BlobURI:    uri,
		RecordedAt: now,
	}); err != nil {
		r.logger.Warn("chunk bookkeeping failed", zap.Int("chunk", index), zap.Error(err))
	}
	r.publishEvent(ctx, publish.ChunkEvent{
		Kind:       "chunk",
		RunID:      sum.RunID,
		Chunk:      index,
		Items:      len(urls),
		Records:    len(records),
		RowsLoaded: loaded,
		BlobURI:    uri,
		At:         now,
	})

	r.logger.Info("chunk complete",
		zap.String("run_id", sum.RunID),
		zap.Int("chunk", index),
		zap.Int("items", len(urls)),
		zap.Int("records", len(records)),
		zap.Int64("rows_loaded", loaded),
	)
	return nil
}

// finish closes out the run everywhere: tracker, store, publisher, log.
func (r *Runner) finish(ctx context.Context, sum *Summary, searchURL string, start time.Time, err error) (Summary, error) {
	now := r.clock.Now()
	sum.Elapsed = now.Sub(start)

	errText := ""
	if err != nil {
		errText = err.Error()
		switch {
		case errors.Is(err, fetch.ErrRateLimited):
			sum.Status = StatusRateLimited
			r.tracker.MarkRateLimited()
		default:
			sum.Status = StatusFailed
		}
	}

	r.tracker.Finish(sum.Status, now)
	if serr := r.store.FinishRun(ctx, runstore.Finish{
		RunID:          sum.RunID,
		Status:         sum.Status,
		Error:          errText,
		ItemsAttempted: sum.ItemsAttempted,
		RecordsParsed:  sum.RecordsParsed,
		RowsLoaded:     sum.RowsLoaded,
		FinishedAt:     now,
	}); serr != nil {
		r.logger.Warn("run bookkeeping failed", zap.Error(serr))
	}
	r.publishEvent(ctx, publish.RunEvent{
		Kind:           "run",
		RunID:          sum.RunID,
		Status:         sum.Status,
		SearchURL:      searchURL,
		ChunksDone:     sum.ChunksDone,
		ItemsAttempted: sum.ItemsAttempted,
		RecordsParsed:  sum.RecordsParsed,
		RowsLoaded:     sum.RowsLoaded,
		ElapsedSeconds: sum.Elapsed.Seconds(),
		Error:          errText,
		At:             now,
	})

	pct := 0.0
	if sum.ItemsAttempted > 0 {
		pct = 100 * float64(sum.RecordsParsed) / float64(sum.ItemsAttempted)
	}
	r.logger.Info("run finished",
		zap.String("run_id", sum.RunID),
		zap.String("status", sum.Status),
		zap.Int("chunks_done", sum.ChunksDone),
		zap.Int("items_attempted", sum.ItemsAttempted),
		zap.Int("records_parsed", sum.RecordsParsed),
		zap.Float64("success_pct", pct),
		zap.Int64("rows_loaded", sum.RowsLoaded),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return *sum, err
}

func (r *Runner) publishEvent(ctx context.Context, event any) {
	if r.publisher == nil {
		return
	}
	if _, err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("event publish failed", zap.Error(err))
	}
}

// chunks splits urls into groups of size; the last group may be short.
func chunks(urls []string, size int) [][]string {
	var out [][]string
	for len(urls) > size {
		out = append(out, urls[:size])
		urls = urls[size:]
	}
	if len(urls) > 0 {
		out = append(out, urls)
	}
	return out
}

func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
