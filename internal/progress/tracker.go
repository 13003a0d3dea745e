// Package progress tracks the state of the current run for the ops
// endpoint. One harvester process runs one batch at a time, so a single
// mutex-guarded snapshot is all the bookkeeping needed.
package progress

import (
	"sync"
	"time"
)

// Run states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
)

// Snapshot is the JSON shape served at /v1/run.
type Snapshot struct {
	State          string     `json:"state"`
	RunID          string     `json:"run_id,omitempty"`
	SearchURL      string     `json:"search_url,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status,omitempty"`
	ChunksDone     int        `json:"chunks_done"`
	ItemsAttempted int        `json:"items_attempted"`
	RecordsParsed  int        `json:"records_parsed"`
	RowsLoaded     int64      `json:"rows_loaded"`
	RateLimited    bool       `json:"rate_limited"`
}

// Tracker accumulates run progress. The zero value is idle and usable.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: StateIdle}}
}

// Start resets the tracker for a fresh run.
func (t *Tracker) Start(runID, searchURL string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started := at
	t.snap = Snapshot{
		State:     StateRunning,
		RunID:     runID,
		SearchURL: searchURL,
		StartedAt: &started,
	}
}

// AddItems counts items handed to the fetcher.
func (t *Tracker) AddItems(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.ItemsAttempted += n
}

// AddRecords counts successfully parsed records.
func (t *Tracker) AddRecords(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RecordsParsed += n
}

// AddRows counts rows confirmed loaded by the warehouse.
func (t *Tracker) AddRows(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RowsLoaded += n
}

// ChunkDone counts one fully processed chunk.
func (t *Tracker) ChunkDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.ChunksDone++
}

// MarkRateLimited records the hard-stop signal.
func (t *Tracker) MarkRateLimited() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RateLimited = true
}

// Finish closes the run with its terminal status.
func (t *Tracker) Finish(status string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	finished := at
	t.snap.State = StateDone
	t.snap.Status = status
	t.snap.FinishedAt = &finished
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
