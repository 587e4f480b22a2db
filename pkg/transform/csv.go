package transform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// CSV reads a headed CSV file into record batches, inferring column types
// from the first chunk. Local paths, file:// and http(s):// references are
// supported.
type CSV struct {
	client *http.Client
	mem    memory.Allocator
	chunk  int
	comma  rune
}

// CSVOption configures a CSV transformer.
type CSVOption func(*CSV)

// WithAllocator sets the allocator used for record batches.
func WithAllocator(mem memory.Allocator) CSVOption {
	return func(c *CSV) {
		if mem != nil {
			c.mem = mem
		}
	}
}

// WithChunkSize sets the number of rows per record batch.
func WithChunkSize(n int) CSVOption {
	return func(c *CSV) { c.chunk = n }
}

// WithComma sets the field delimiter.
func WithComma(r rune) CSVOption {
	return func(c *CSV) { c.comma = r }
}

// WithHTTPClient sets the client used for http(s) inputs.
func WithHTTPClient(client *http.Client) CSVOption {
	return func(c *CSV) { c.client = client }
}

// NewCSV creates a CSV transformer.
func NewCSV(opts ...CSVOption) *CSV {
	c := &CSV{
		client: &http.Client{Timeout: 10 * time.Minute},
		mem:    memory.DefaultAllocator,
		chunk:  64 * 1024,
		comma:  ',',
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run implements Transformer.
func (c *CSV) Run(ctx context.Context, filePath string) (*Output, error) {
	r, err := c.open(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rdr := csv.NewInferringReader(r,
		csv.WithHeader(true),
		csv.WithChunk(c.chunk),
		csv.WithComma(c.comma),
		csv.WithAllocator(c.mem),
	)
	defer rdr.Release()

	out := &Output{}
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		out.Records = append(out.Records, rec)
	}
	if err := rdr.Err(); err != nil {
		out.Release()
		return nil, fmt.Errorf("read csv: %w", err)
	}
	out.Schema = rdr.Schema()

	return out, nil
}

func (c *CSV) open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	u, err := url.Parse(filePath)
	if err != nil {
		return nil, fmt.Errorf("parse file path: %w", err)
	}

	switch u.Scheme {
	case "":
		return os.Open(filePath)
	case "file":
		return os.Open(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, filePath, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", filePath, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: unexpected status %d", filePath, resp.StatusCode)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
