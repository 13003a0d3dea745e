// Package bigquery loads uploaded parquet objects into a warehouse table.
package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
)

// LoadError reports a failed warehouse load. Like an upload failure, it
// aborts the remaining chunks of a run.
type LoadError struct {
	URI string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.URI, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader appends parquet objects from GCS to one BigQuery table.
type Loader struct {
	client  *bigquery.Client
	dataset string
	table   string
	logger  *zap.Logger
}

// New creates a loader. A nil logger is replaced with a nop.
func New(client *bigquery.Client, dataset, table string, logger *zap.Logger) (*Loader, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client is required")
	}
	if dataset == "" || table == "" {
		return nil, fmt.Errorf("dataset and table are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{client: client, dataset: dataset, table: table, logger: logger}, nil
}

// Load runs a load job for the gs:// URI and returns the rows appended.
// The table is created from the parquet schema on first load.
func (l *Loader) Load(ctx context.Context, uri string) (int64, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return 0, &LoadError{URI: uri, Err: fmt.Errorf("loader needs a gs:// URI")}
	}

	ref := bigquery.NewGCSReference(uri)
	ref.SourceFormat = bigquery.Parquet

	loader := l.client.Dataset(l.dataset).Table(l.table).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, &LoadError{URI: uri, Err: fmt.Errorf("start load job: %w", err)}
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, &LoadError{URI: uri, Err: fmt.Errorf("wait for load job: %w", err)}
	}
	if err := status.Err(); err != nil {
		return 0, &LoadError{URI: uri, Err: fmt.Errorf("load job failed: %w", err)}
	}

	var rows int64
	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		rows = stats.OutputRows
	}
	l.logger.Info("warehouse load complete",
		zap.String("uri", uri),
		zap.String("dataset", l.dataset),
		zap.String("table", l.table),
		zap.Int64("rows", rows),
	)
	return rows, nil
}
