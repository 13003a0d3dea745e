// Package publish emits run and chunk completion events so downstream
// consumers (dashboards, the warehouse merge job) learn about fresh data
// without polling. Production uses Pub/Sub; the memory publisher backs
// tests and dev runs.
package publish

import (
	"context"
	"time"
)

// Publisher delivers one JSON-encodable event and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, event any) (string, error)
}

// ChunkEvent announces one loaded chunk.
type ChunkEvent struct {
	Kind       string    `json:"kind"` // always "chunk"
	RunID      string    `json:"run_id"`
	Chunk      int       `json:"chunk"`
	Items      int       `json:"items"`
	Records    int       `json:"records"`
	RowsLoaded int64     `json:"rows_loaded"`
	BlobURI    string    `json:"blob_uri"`
	At         time.Time `json:"at"`
}

// RunEvent announces a finished run, complete or not.
type RunEvent struct {
	Kind           string    `json:"kind"` // always "run"
	RunID          string    `json:"run_id"`
	Status         string    `json:"status"`
	SearchURL      string    `json:"search_url"`
	ChunksDone     int       `json:"chunks_done"`
	ItemsAttempted int       `json:"items_attempted"`
	RecordsParsed  int       `json:"records_parsed"`
	RowsLoaded     int64     `json:"rows_loaded"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}
