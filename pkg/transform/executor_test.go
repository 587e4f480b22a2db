package transform_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/transformer-service/pkg/transform"
)

type transformerFunc func(ctx context.Context, filePath string) (*transform.Output, error)

func (f transformerFunc) Run(ctx context.Context, filePath string) (*transform.Output, error) {
	return f(ctx, filePath)
}

var xySchema = arrow.NewSchema([]arrow.Field{
	{Name: "x", Type: arrow.PrimitiveTypes.Int64},
	{Name: "y", Type: arrow.BinaryTypes.String},
}, nil)

var yxSchema = arrow.NewSchema([]arrow.Field{
	{Name: "y", Type: arrow.BinaryTypes.String},
	{Name: "x", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// buildRecord builds a batch of n rows for xySchema or yxSchema.
func buildRecord(t *testing.T, mem memory.Allocator, schema *arrow.Schema, n int) arrow.Record {
	t.Helper()
	bld := array.NewRecordBuilder(mem, schema)
	defer bld.Release()

	for i, f := range schema.Fields() {
		switch f.Name {
		case "x":
			for j := 0; j < n; j++ {
				bld.Field(i).(*array.Int64Builder).Append(int64(j))
			}
		case "y":
			for j := 0; j < n; j++ {
				bld.Field(i).(*array.StringBuilder).Append(fmt.Sprintf("row-%d", j))
			}
		}
	}
	return bld.NewRecord()
}

func TestExecute_Success(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	exec := transform.NewExecutor(transformerFunc(func(_ context.Context, _ string) (*transform.Output, error) {
		return &transform.Output{
			Schema:  xySchema,
			Records: []arrow.Record{buildRecord(t, mem, xySchema, 4), buildRecord(t, mem, xySchema, 6)},
		}, nil
	}), mem)

	res, err := exec.Execute(context.Background(), "root://a/b/c.root")
	require.NoError(t, err)
	defer res.Release()

	assert.EqualValues(t, 10, res.Table.NumRows())
	assert.EqualValues(t, 2, res.Table.NumCols())
	assert.GreaterOrEqual(t, res.TransformDuration.Nanoseconds(), int64(0))
}

func TestExecute_TransformerErrorWrapped(t *testing.T) {
	exec := transform.NewExecutor(transformerFunc(func(_ context.Context, _ string) (*transform.Output, error) {
		return nil, errors.New("cannot open file")
	}), nil)

	_, err := exec.Execute(context.Background(), "root://a/b/c.root")

	var failure *transform.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "root://a/b/c.root", failure.FilePath)
	assert.Equal(t, "failed to transform input file root://a/b/c.root: cannot open file", err.Error())
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	exec := transform.NewExecutor(transformerFunc(func(_ context.Context, _ string) (*transform.Output, error) {
		panic("index out of range")
	}), nil)

	_, err := exec.Execute(context.Background(), "f")

	var failure *transform.Failure
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, err.Error(), "index out of range")
}

func TestExecute_NilOutput(t *testing.T) {
	exec := transform.NewExecutor(transformerFunc(func(_ context.Context, _ string) (*transform.Output, error) {
		return nil, nil
	}), nil)

	_, err := exec.Execute(context.Background(), "f")
	var failure *transform.Failure
	require.True(t, errors.As(err, &failure))
}

func TestExecute_RepartitionFallback(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	exec := transform.NewExecutor(transformerFunc(func(_ context.Context, _ string) (*transform.Output, error) {
		return &transform.Output{
			Schema:  xySchema,
			Records: []arrow.Record{buildRecord(t, mem, xySchema, 3), buildRecord(t, mem, yxSchema, 7)},
		}, nil
	}), mem)

	res, err := exec.Execute(context.Background(), "f")
	require.NoError(t, err)
	defer res.Release()

	assert.EqualValues(t, 10, res.Table.NumRows())
	assert.True(t, res.Table.Schema().Equal(xySchema))
	assert.Len(t, res.Table.Column(0).Data().Chunks(), 1, "fallback merges into one batch")
}

func TestExecute_FallbackFailureSurfaces(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	onlyX := arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)
	exec := transform.NewExecutor(transformerFunc(func(_ context.Context, _ string) (*transform.Output, error) {
		return &transform.Output{
			Schema:  xySchema,
			Records: []arrow.Record{buildRecord(t, mem, onlyX, 2)},
		}, nil
	}), mem)

	_, err := exec.Execute(context.Background(), "f")
	var failure *transform.Failure
	require.True(t, errors.As(err, &failure))
	assert.ErrorIs(t, err, transform.ErrSchemaMismatch)
}

func writeCSV(t *testing.T, rows int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("event,pt\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%d,%d.5\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestCSV_LocalFile(t *testing.T) {
	exec := transform.NewExecutor(transform.NewCSV(transform.WithChunkSize(4)), nil)

	res, err := exec.Execute(context.Background(), writeCSV(t, 10))
	require.NoError(t, err)
	defer res.Release()

	assert.EqualValues(t, 10, res.Table.NumRows())
	assert.Equal(t, "event", res.Table.Schema().Field(0).Name)
}

func TestCSV_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a,b\n1,2\n3,4\n"))
	}))
	defer srv.Close()

	out, err := transform.NewCSV().Run(context.Background(), srv.URL+"/data.csv")
	require.NoError(t, err)
	defer out.Release()
	assert.EqualValues(t, 2, out.NumRows())
}

func TestCSV_CustomDelimiterAndClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a;b\n1;2\n3;4\n5;6\n"))
	}))
	defer srv.Close()

	tr, err := transform.New("csv", nil, transform.WithComma(';'), transform.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	out, err := tr.Run(context.Background(), srv.URL+"/data.csv")
	require.NoError(t, err)
	defer out.Release()

	assert.EqualValues(t, 3, out.NumRows())
	require.Len(t, out.Schema.Fields(), 2)
	assert.Equal(t, "b", out.Schema.Field(1).Name)
}

func TestCSV_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := transform.NewCSV(transform.WithHTTPClient(srv.Client())).Run(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestCSV_UnsupportedScheme(t *testing.T) {
	_, err := transform.NewCSV().Run(context.Background(), "root://eos/file.root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestNew(t *testing.T) {
	tr, err := transform.New("csv", nil)
	require.NoError(t, err)
	assert.IsType(t, &transform.CSV{}, tr)

	_, err = transform.New("uproot", nil)
	require.Error(t, err)
}
