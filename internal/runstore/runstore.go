// Package runstore persists run and chunk bookkeeping rows so operators
// can reconcile what a run attempted against what the warehouse received.
// Postgres backs production; Noop stands in when no DSN is configured.
package runstore

import (
	"context"
	"time"
)

// Run is the row written when a run starts.
type Run struct {
	ID          string
	SearchURL   string
	Transaction string
	StartedAt   time.Time
}

// Chunk is the row written after each loaded chunk.
type Chunk struct {
	RunID      string
	Index      int
	Items      int
	Records    int
	RowsLoaded int64
	BlobURI    string
	RecordedAt time.Time
}

// Finish closes out a run with its terminal status and totals.
type Finish struct {
	RunID          string
	Status         string
	Error          string
	ItemsAttempted int
	RecordsParsed  int
	RowsLoaded     int64
	FinishedAt     time.Time
}

// Store records run lifecycle rows.
type Store interface {
	StartRun(ctx context.Context, run Run) error
	RecordChunk(ctx context.Context, chunk Chunk) error
	FinishRun(ctx context.Context, fin Finish) error
	Close()
}

// Noop satisfies Store without persisting anything.
type Noop struct{}

// StartRun does nothing.
func (Noop) StartRun(context.Context, Run) error { return nil }

// RecordChunk does nothing.
func (Noop) RecordChunk(context.Context, Chunk) error { return nil }

// FinishRun does nothing.
func (Noop) FinishRun(context.Context, Finish) error { return nil }

// Close does nothing.
func (Noop) Close() {}
