package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"idealista-harvester/internal/fetch"
	"idealista-harvester/internal/listing"
	"idealista-harvester/internal/progress"
	"idealista-harvester/internal/publish"
	"idealista-harvester/internal/runstore"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-1", nil }

// fakeScraper serves a fixed URL list and one record per item URL. Chunks
// can be made empty or rate-limited by call index, and each ScrapeItems
// call can advance a clock to simulate slow chunks.
type fakeScraper struct {
	urls []string

	mu          sync.Mutex
	itemCalls   [][]string
	emptyCall   int // ScrapeItems call index that yields no records; -1 disables
	limitedCall int // ScrapeItems call index that rate-limits; -1 disables
	perCall     func()
}

func (f *fakeScraper) Prime(context.Context) error { return nil }

func (f *fakeScraper) ScrapeSearch(context.Context, string, bool) ([]string, error) {
	return append([]string(nil), f.urls...), nil
}

func (f *fakeScraper) ScrapeItems(_ context.Context, urls []string) ([]listing.Record, error) {
	f.mu.Lock()
	call := len(f.itemCalls)
	f.itemCalls = append(f.itemCalls, append([]string(nil), urls...))
	f.mu.Unlock()
	if f.perCall != nil {
		f.perCall()
	}
	if call == f.limitedCall {
		return nil, fmt.Errorf("scrape items: %w", fetch.ErrRateLimited)
	}
	if call == f.emptyCall {
		return nil, nil
	}
	records := make([]listing.Record, 0, len(urls))
	for _, url := range urls {
		records = append(records, listing.Record{
			URL:      url,
			Title:    "Piso en venta en calle Ancha",
			Location: "Casco, Toledo",
			Price:    120000,
		})
	}
	return records, nil
}

func (f *fakeScraper) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.itemCalls))
	copy(out, f.itemCalls)
	return out
}

type fakeUploader struct {
	mu     sync.Mutex
	chunks []int
	failOn int // chunk index that fails; -1 disables
}

func (u *fakeUploader) Upload(_ context.Context, rows []listing.Row, runID string, chunk int, day time.Time) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if chunk == u.failOn {
		return "", errors.New("bucket on fire")
	}
	u.chunks = append(u.chunks, chunk)
	return fmt.Sprintf("gs://bucket/sale/%s/%s_chunk%d.parquet", day.UTC().Format("2006-01-02"), runID, chunk), nil
}

type fakeLoader struct {
	rowsPerChunk int64
	failOn       string // URI substring that fails; empty disables
}

func (l *fakeLoader) Load(_ context.Context, uri string) (int64, error) {
	if l.failOn != "" && l.failOn == uri {
		return 0, errors.New("load job failed")
	}
	return l.rowsPerChunk, nil
}

type recordingStore struct {
	mu       sync.Mutex
	runs     []runstore.Run
	chunks   []runstore.Chunk
	finishes []runstore.Finish
}

func (s *recordingStore) StartRun(_ context.Context, run runstore.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *recordingStore) RecordChunk(_ context.Context, chunk runstore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingStore) FinishRun(_ context.Context, fin runstore.Finish) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishes = append(s.finishes, fin)
	return nil
}

func (s *recordingStore) Close() {}

func itemURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://www.idealista.com/inmueble/%d/", i)
	}
	return urls
}

func newTestRunner(scraper *fakeScraper, uploader *fakeUploader, loader *fakeLoader, store runstore.Store, pub publish.Publisher, clock *fakeClock, cfg Config) *Runner {
	if cfg.Transaction == "" {
		cfg.Transaction = "sale"
	}
	return NewRunner(scraper, uploader, loader, pub, store, progress.NewTracker(), clock, fixedIDs{}, nil, cfg)
}

func TestRunnerChunksWholeList(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{urls: itemURLs(100), emptyCall: -1, limitedCall: -1}
	uploader := &fakeUploader{failOn: -1}
	store := &recordingStore{}
	pub := publish.NewMemory()
	clock := &fakeClock{t: time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)}

	runner := newTestRunner(scraper, uploader, &fakeLoader{rowsPerChunk: 5}, store, pub, clock, Config{ChunkSize: 30})
	sum, err := runner.Run(context.Background(), "https://www.idealista.com/x/")
	require.NoError(t, err)

	require.Equal(t, StatusComplete, sum.Status)
	require.Equal(t, 4, sum.ChunksDone)
	require.Equal(t, 100, sum.ItemsAttempted)
	require.Equal(t, 100, sum.RecordsParsed)
	require.Equal(t, int64(20), sum.RowsLoaded)

	calls := scraper.calls()
	require.Len(t, calls, 4)
	require.Len(t, calls[0], 30)
	require.Len(t, calls[1], 30)
	require.Len(t, calls[2], 30)
	require.Len(t, calls[3], 10)

	require.Len(t, store.runs, 1)
	require.Len(t, store.chunks, 4)
	require.Len(t, store.finishes, 1)
	require.Equal(t, StatusComplete, store.finishes[0].Status)

	events := pub.Events()
	require.Len(t, events, 5, "four chunk events and one run event")
	run, ok := events[4].(publish.RunEvent)
	require.True(t, ok)
	require.Equal(t, StatusComplete, run.Status)
	require.Equal(t, "https://www.idealista.com/x/", run.SearchURL)
}

func TestRunnerStopsWhenBudgetSpent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)}
	scraper := &fakeScraper{urls: itemURLs(100), emptyCall: -1, limitedCall: -1}
	// Each chunk takes ten hours; an 18h budget fits exactly two chunks.
	scraper.perCall = func() { clock.advance(10 * time.Hour) }
	uploader := &fakeUploader{failOn: -1}

	runner := newTestRunner(scraper, uploader, &fakeLoader{}, nil, nil, clock, Config{ChunkSize: 30, TimeBudget: 18 * time.Hour})
	sum, err := runner.Run(context.Background(), "u")
	require.NoError(t, err, "a spent budget is a clean partial stop, not a failure")

	require.Equal(t, StatusBudgetSpent, sum.Status)
	require.Equal(t, 2, sum.ChunksDone)
	require.Equal(t, 60, sum.ItemsAttempted)
	require.Len(t, scraper.calls(), 2)
}

func TestRunnerSkipsEmptyChunk(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{urls: itemURLs(90), emptyCall: 1, limitedCall: -1}
	uploader := &fakeUploader{failOn: -1}
	clock := &fakeClock{t: time.Now()}

	runner := newTestRunner(scraper, uploader, &fakeLoader{rowsPerChunk: 5}, nil, nil, clock, Config{ChunkSize: 30})
	sum, err := runner.Run(context.Background(), "u")
	require.NoError(t, err, "an empty chunk is skipped, not fatal")

	require.Equal(t, StatusComplete, sum.Status)
	require.Equal(t, 2, sum.ChunksDone, "the empty chunk is not counted as done")
	require.Equal(t, 90, sum.ItemsAttempted)
	require.Equal(t, 60, sum.RecordsParsed)
	require.Equal(t, []int{0, 2}, uploader.chunks, "nothing uploaded for the empty chunk")
}

func TestRunnerAbortsOnUploadError(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{urls: itemURLs(90), emptyCall: -1, limitedCall: -1}
	uploader := &fakeUploader{failOn: 1}
	clock := &fakeClock{t: time.Now()}
	store := &recordingStore{}

	runner := newTestRunner(scraper, uploader, &fakeLoader{}, store, nil, clock, Config{ChunkSize: 30})
	sum, err := runner.Run(context.Background(), "u")
	require.Error(t, err)

	require.Equal(t, StatusFailed, sum.Status)
	require.Equal(t, 1, sum.ChunksDone)
	require.Len(t, scraper.calls(), 2, "remaining chunks are not attempted")
	require.Equal(t, StatusFailed, store.finishes[0].Status)
	require.Contains(t, store.finishes[0].Error, "bucket on fire")
}

func TestRunnerAbortsOnRateLimit(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{urls: itemURLs(90), emptyCall: -1, limitedCall: 0}
	uploader := &fakeUploader{failOn: -1}
	clock := &fakeClock{t: time.Now()}
	pub := publish.NewMemory()

	runner := newTestRunner(scraper, uploader, &fakeLoader{}, nil, pub, clock, Config{ChunkSize: 30})
	sum, err := runner.Run(context.Background(), "u")
	require.ErrorIs(t, err, fetch.ErrRateLimited)

	require.Equal(t, StatusRateLimited, sum.Status)
	require.Zero(t, sum.ChunksDone)
	require.Len(t, scraper.calls(), 1, "dispatch stops at the hard-stop chunk")

	events := pub.Events()
	require.NotEmpty(t, events)
	run, ok := events[len(events)-1].(publish.RunEvent)
	require.True(t, ok)
	require.Equal(t, StatusRateLimited, run.Status)
}

func TestChunksSplit(t *testing.T) {
	t.Parallel()

	got := chunks(itemURLs(100), 30)
	require.Len(t, got, 4)
	require.Len(t, got[3], 10)

	require.Len(t, chunks(itemURLs(30), 30), 1)
	require.Empty(t, chunks(nil, 30))
}
