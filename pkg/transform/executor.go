package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/pdfme/transformer-service/pkg/types"
)

// ErrSchemaMismatch is returned when record batches do not line up with the
// declared output schema.
var ErrSchemaMismatch = errors.New("record batch schema mismatch")

// Result is the table produced for one file plus timing metadata.
type Result struct {
	Table                 arrow.Table
	TransformDuration     time.Duration
	SerializationDuration time.Duration
}

// Release releases the table.
func (r *Result) Release() {
	if r != nil && r.Table != nil {
		r.Table.Release()
	}
}

// Executor invokes a Transformer and converts its output into a table.
type Executor struct {
	transformer Transformer
	mem         memory.Allocator
}

// NewExecutor creates an executor around t.
func NewExecutor(t Transformer, mem memory.Allocator) *Executor {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Executor{transformer: t, mem: mem}
}

// Execute transforms filePath. Every error returned is a *Failure.
func (e *Executor) Execute(ctx context.Context, filePath string) (*Result, error) {
	slog.Info("transforming a single path", "file_path", filePath)

	startTransform := time.Now()
	out, err := e.run(ctx, filePath)
	if err != nil {
		return nil, &Failure{FilePath: filePath, Err: err}
	}
	defer out.Release()
	transformDuration := time.Since(startTransform)
	slog.Info("transformer finished",
		"file_path", filePath,
		"seconds", types.RoundSeconds(transformDuration.Seconds()),
		"rows", out.NumRows(),
	)

	startSerialization := time.Now()
	tbl, err := assemble(out)
	if err != nil {
		slog.Warn("table assembly failed, repartitioning", "file_path", filePath, "error", err)
		tbl, err = repartition(e.mem, out)
		if err != nil {
			return nil, &Failure{FilePath: filePath, Err: err}
		}
	}
	serializationDuration := time.Since(startSerialization)
	slog.Info("record batches -> table",
		"file_path", filePath,
		"seconds", types.RoundSeconds(serializationDuration.Seconds()),
	)

	return &Result{
		Table:                 tbl,
		TransformDuration:     transformDuration,
		SerializationDuration: serializationDuration,
	}, nil
}

// run calls the transformer, turning a panic into an error.
func (e *Executor) run(ctx context.Context, filePath string) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out.Release()
			out, err = nil, fmt.Errorf("transformer panic: %v", r)
		}
	}()

	out, err = e.transformer.Run(ctx, filePath)
	if err != nil {
		out.Release()
		return nil, err
	}
	if out == nil {
		return nil, errors.New("transformer returned no output")
	}
	return out, nil
}

// assemble builds a table from the batches exactly as delivered.
func assemble(out *Output) (arrow.Table, error) {
	if out.Schema == nil {
		return nil, errors.New("output has no schema")
	}
	for i, rec := range out.Records {
		if !rec.Schema().Equal(out.Schema) {
			return nil, fmt.Errorf("record batch %d: %w", i, ErrSchemaMismatch)
		}
	}
	return array.NewTableFromRecords(out.Schema, out.Records), nil
}

// repartition merges all batches into a single batch, taking each column of
// the declared schema by name from every batch.
func repartition(mem memory.Allocator, out *Output) (arrow.Table, error) {
	if out.Schema == nil {
		return nil, errors.New("output has no schema")
	}

	fields := out.Schema.Fields()
	cols := make([]arrow.Array, 0, len(fields))
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}

	for _, field := range fields {
		chunks := make([]arrow.Array, 0, len(out.Records))
		for i, rec := range out.Records {
			idx := rec.Schema().FieldIndices(field.Name)
			if len(idx) != 1 {
				release()
				return nil, fmt.Errorf("record batch %d: column %q: %w", i, field.Name, ErrSchemaMismatch)
			}
			col := rec.Column(idx[0])
			if !arrow.TypeEqual(col.DataType(), field.Type) {
				release()
				return nil, fmt.Errorf("record batch %d: column %q is %s, want %s: %w",
					i, field.Name, col.DataType(), field.Type, ErrSchemaMismatch)
			}
			chunks = append(chunks, col)
		}

		var merged arrow.Array
		if len(chunks) == 0 {
			merged = array.MakeArrayOfNull(mem, field.Type, 0)
		} else {
			var err error
			merged, err = array.Concatenate(chunks, mem)
			if err != nil {
				release()
				return nil, fmt.Errorf("concatenate column %q: %w", field.Name, err)
			}
		}
		cols = append(cols, merged)
	}

	rec := array.NewRecord(out.Schema, cols, out.NumRows())
	release()
	defer rec.Release()

	return array.NewTableFromRecords(out.Schema, []arrow.Record{rec}), nil
}
