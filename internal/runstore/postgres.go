package runstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool and table names.
type PostgresConfig struct {
	DSN             string
	RunTable        string // default "runs"
	ChunkTable      string // default "run_chunks"
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres writes run bookkeeping rows into Postgres.
type Postgres struct {
	pool       execCloser
	runTable   string
	chunkTable string
}

// NewPostgres connects a pool from the config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresWithPool(pool, cfg.RunTable, cfg.ChunkTable)
}

// NewPostgresWithPool builds a store over an existing pool, primarily for
// tests.
func NewPostgresWithPool(pool execCloser, runTable, chunkTable string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runTable == "" {
		runTable = "runs"
	}
	if chunkTable == "" {
		chunkTable = "run_chunks"
	}
	for _, table := range []string{runTable, chunkTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Postgres{pool: pool, runTable: runTable, chunkTable: chunkTable}, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts the run row.
func (s *Postgres) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, search_url, transaction_kind, status, started_at)
VALUES ($1, $2, $3, 'running', $4)`, s.runTable)
	if _, err := s.pool.Exec(ctx, query, run.ID, run.SearchURL, run.Transaction, run.StartedAt); err != nil {
		return fmt.Errorf("insert run row: %w", err)
	}
	return nil
}

// RecordChunk inserts one chunk row.
func (s *Postgres) RecordChunk(ctx context.Context, chunk Chunk) error {
	if chunk.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, chunk, items, records, rows_loaded, blob_uri, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.chunkTable)
	_, err := s.pool.Exec(ctx, query,
		chunk.RunID,
		chunk.Index,
		chunk.Items,
		chunk.Records,
		chunk.RowsLoaded,
		chunk.BlobURI,
		chunk.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chunk row: %w", err)
	}
	return nil
}

// FinishRun closes the run row with its terminal status and totals.
func (s *Postgres) FinishRun(ctx context.Context, fin Finish) error {
	if fin.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2,
    error = $3,
    items_attempted = $4,
    records_parsed = $5,
    rows_loaded = $6,
    finished_at = $7
WHERE id = $1`, s.runTable)
	_, err := s.pool.Exec(ctx, query,
		fin.RunID,
		fin.Status,
		fin.Error,
		fin.ItemsAttempted,
		fin.RecordsParsed,
		fin.RowsLoaded,
		fin.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run row: %w", err)
	}
	return nil
}
