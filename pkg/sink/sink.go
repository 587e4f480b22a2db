// Package sink writes transformed tables to local parquet files and, when an
// object store is configured, uploads them and removes the local copy.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

const (
	// rowGroupSize bounds the rows buffered per parquet row group.
	rowGroupSize = 64 * 1024
	// resultMode lets other readers of a shared volume open results.
	resultMode os.FileMode = 0o644
)

// ObjectStore uploads a local file under key, grouped by request.
type ObjectStore interface {
	Upload(ctx context.Context, requestID, key, localPath string) error
}

// PersistError reports a failed local write.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// UploadError reports a failed upload. The local file is left in place.
type UploadError struct {
	RequestID string
	Key       string
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s for request %s: %v", e.Key, e.RequestID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Sink persists result tables under dir.
type Sink struct {
	dir   string
	store ObjectStore
	props *parquet.WriterProperties
}

// New creates a sink writing under dir. store may be nil, in which case
// results stay on the local volume.
func New(dir string, store ObjectStore) *Sink {
	return &Sink{
		dir:   dir,
		store: store,
		props: parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
	}
}

// Uploads reports whether results are shipped to an object store.
func (s *Sink) Uploads() bool {
	return s.store != nil
}

// Path returns the local path for a result name.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// EnsureDir creates the output directory if it does not exist.
func (s *Sink) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &PersistError{Path: s.dir, Err: err}
	}
	return nil
}

// Persist writes tbl as parquet to dest. The file is written under a
// temporary name in the same directory and renamed once complete, so a
// partial file is never visible at dest.
func (s *Sink) Persist(tbl arrow.Table, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return &PersistError{Path: dest, Err: err}
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(resultMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistError{Path: dest, Err: err}
	}

	if err := s.write(tbl, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistError{Path: dest, Err: err}
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: dest, Err: err}
	}

	slog.Debug("result written", "path", dest, "rows", tbl.NumRows())
	return nil
}

func (s *Sink) write(tbl arrow.Table, f *os.File) error {
	fw, err := pqarrow.NewFileWriter(tbl.Schema(), f, s.props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("open parquet writer: %w", err)
	}
	if err := fw.WriteTable(tbl, rowGroupSize); err != nil {
		fw.Close()
		return fmt.Errorf("write table: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	// The parquet writer closes its sink; closing again is harmless.
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// UploadAndCleanup uploads localPath under key and removes the local file once
// the upload has succeeded.
func (s *Sink) UploadAndCleanup(ctx context.Context, requestID, key, localPath string) error {
	if s.store == nil {
		return &UploadError{RequestID: requestID, Key: key, Err: errors.New("no object store configured")}
	}

	if err := s.store.Upload(ctx, requestID, key, localPath); err != nil {
		return &UploadError{RequestID: requestID, Key: key, Err: err}
	}

	if err := os.Remove(localPath); err != nil {
		slog.Warn("failed to remove uploaded file", "path", localPath, "error", err)
	}
	return nil
}
