// Package storage turns normalized listing rows into parquet objects in a
// blob store. The store backends live in the subpackages (gcs for
// production, local and memory for development and tests); this package
// owns the encoding and the object naming.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"idealista-harvester/internal/listing"
)

// ContentType of the uploaded objects.
const ContentType = "application/vnd.apache.parquet"

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// UploadError reports a failed chunk upload. It aborts the remaining
// chunks of a run.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader encodes row chunks to parquet and writes them to the store.
type Uploader struct {
	store  BlobStore
	prefix string
}

// NewUploader builds an uploader. prefix is the leading path segment of
// every object, typically the transaction kind.
func NewUploader(store BlobStore, prefix string) *Uploader {
	return &Uploader{store: store, prefix: prefix}
}

// Upload writes one chunk's rows as a parquet object and returns its URI.
func (u *Uploader) Upload(ctx context.Context, rows []listing.Row, runID string, chunk int, day time.Time) (string, error) {
	path := u.ObjectPath(runID, chunk, day)
	data, err := encodeRows(rows)
	if err != nil {
		return "", &UploadError{Path: path, Err: err}
	}
	uri, err := u.store.PutObject(ctx, path, ContentType, bytes.NewReader(data))
	if err != nil {
		return "", &UploadError{Path: path, Err: err}
	}
	return uri, nil
}

// ObjectPath is {prefix}/{YYYY-MM-DD}/{runID}_chunkN.parquet.
func (u *Uploader) ObjectPath(runID string, chunk int, day time.Time) string {
	return fmt.Sprintf("%s/%s/%s_chunk%d.parquet", u.prefix, day.UTC().Format("2006-01-02"), runID, chunk)
}

func encodeRows(rows []listing.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[listing.Row](&buf)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
