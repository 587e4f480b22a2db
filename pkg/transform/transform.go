// Package transform runs a pluggable Transformer on one input file and turns
// its record batches into a single columnar table ready to be persisted.
package transform

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Transformer converts one input file reference into columnar record batches.
type Transformer interface {
	Run(ctx context.Context, filePath string) (*Output, error)
}

// Output is what a Transformer produces. Records are expected to share Schema,
// but the executor tolerates batches whose columns come in a different order.
type Output struct {
	Schema  *arrow.Schema
	Records []arrow.Record
}

// Release releases every record batch held by o.
func (o *Output) Release() {
	if o == nil {
		return
	}
	for _, rec := range o.Records {
		rec.Release()
	}
	o.Records = nil
}

// NumRows returns the total row count across all batches.
func (o *Output) NumRows() int64 {
	var n int64
	for _, rec := range o.Records {
		n += rec.NumRows()
	}
	return n
}

// New returns the built-in transformer registered under name. csvOpts apply
// to the csv transformer after the allocator.
func New(name string, mem memory.Allocator, csvOpts ...CSVOption) (Transformer, error) {
	switch name {
	case "csv":
		return NewCSV(append([]CSVOption{WithAllocator(mem)}, csvOpts...)...), nil
	default:
		return nil, fmt.Errorf("unknown transformer: %q", name)
	}
}

// Failure wraps any error raised while transforming or converting one file.
type Failure struct {
	FilePath string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("failed to transform input file %s: %v", f.FilePath, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
