// Package servicex reports per-file progress to the coordinating service that
// issued the transform request.
package servicex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdfme/transformer-service/pkg/types"
)

// ReportError reports a status call that could not be delivered.
type ReportError struct {
	Op  string
	URL string
	Err error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// errClient marks a 4xx response, which is not retried.
type errClient struct{ status int }

func (e errClient) Error() string { return fmt.Sprintf("unexpected status %d", e.status) }

type statusUpdate struct {
	Timestamp  string           `json:"timestamp"`
	StatusCode types.StatusCode `json:"status-code"`
	Info       string           `json:"info"`
}

// Client sends status updates and file-complete records.
type Client struct {
	http       *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a Client. Each call is attempted up to maxRetries times.
func NewClient(httpClient *http.Client, maxRetries int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		http:       httpClient,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// WithBackoff returns a copy of c waiting d, 2d, 3d, ... between attempts.
func (c *Client) WithBackoff(d time.Duration) *Client {
	cp := *c
	cp.backoff = d
	return &cp
}

// ReportStart posts the "start" status for fileID.
func (c *Client) ReportStart(ctx context.Context, endpoint, fileID string) error {
	return c.PostStatus(ctx, endpoint, types.StatusEvent{FileID: fileID, Code: types.StatusStart, Info: "Starting"})
}

// ReportComplete posts the "complete" status for fileID.
func (c *Client) ReportComplete(ctx context.Context, endpoint, fileID string) error {
	return c.PostStatus(ctx, endpoint, types.StatusEvent{FileID: fileID, Code: types.StatusComplete, Info: "Success"})
}

// ReportFailure posts the "failure" status for fileID.
func (c *Client) ReportFailure(ctx context.Context, endpoint, fileID, detail string) error {
	return c.PostStatus(ctx, endpoint, types.StatusEvent{FileID: fileID, Code: types.StatusFailure, Info: "error: " + detail})
}

// PostStatus sends ev to <endpoint>/<file-id>/status.
func (c *Client) PostStatus(ctx context.Context, endpoint string, ev types.StatusEvent) error {
	target := strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(ev.FileID) + "/status"
	body, err := json.Marshal(statusUpdate{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		StatusCode: ev.Code,
		Info:       ev.Info,
	})
	if err != nil {
		return &ReportError{Op: "POST", URL: target, Err: err}
	}
	return c.send(ctx, http.MethodPost, target, body)
}

// ReportCompletionRecord sends rec to <endpoint>/file-complete.
func (c *Client) ReportCompletionRecord(ctx context.Context, endpoint string, rec types.CompletionRecord) error {
	target := strings.TrimRight(endpoint, "/") + "/file-complete"
	body, err := json.Marshal(rec)
	if err != nil {
		return &ReportError{Op: "PUT", URL: target, Err: err}
	}
	return c.send(ctx, http.MethodPut, target, body)
}

func (c *Client) send(ctx context.Context, method, target string, body []byte) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err = c.do(ctx, method, target, body)
		if err == nil {
			return nil
		}
		if _, ok := err.(errClient); ok || attempt == c.maxRetries {
			break
		}

		slog.Debug("status call failed, retrying", "url", target, "attempt", attempt, "error", err)
		timer := time.NewTimer(time.Duration(attempt) * c.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ReportError{Op: method, URL: target, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return &ReportError{Op: method, URL: target, Err: err}
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errClient{status: resp.StatusCode}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
