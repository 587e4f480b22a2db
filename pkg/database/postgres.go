package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pdfme/transformer-service/pkg/types"
)

type DB struct {
	*sql.DB
}

// NewPostgresDB creates a new PostgreSQL connection pool
func NewPostgresDB(dsn string, maxPool int) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection pool settings
	db.SetMaxOpenConns(maxPool)
	db.SetMaxIdleConns(maxPool / 2)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Job represents one transformed file
type Job struct {
	RequestID        string
	FileID           string
	FilePath         string
	Status           string
	OutputName       *string
	ErrorMessage     *string
	TotalTimeSeconds *float64
	RowsWritten      *int64
	Attempts         int
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// JobStarted records the start of a transform. A redelivered file restarts
// its existing row and bumps the attempt counter.
func (db *DB) JobStarted(ctx context.Context, req *types.TransformRequest) error {
	query := `
		INSERT INTO transform_jobs (request_id, file_id, file_path, status)
		VALUES ($1, $2, $3, 'processing')
		ON CONFLICT (request_id, file_id) DO UPDATE
		SET status = 'processing',
		    attempts = transform_jobs.attempts + 1,
		    started_at = NOW(),
		    completed_at = NULL,
		    error_message = NULL
	`

	_, err := db.ExecContext(ctx, query, req.RequestID, req.FileID, req.FilePath)
	if err != nil {
		return fmt.Errorf("failed to record job start: %w", err)
	}

	return nil
}

// JobFinished records the terminal outcome of a transform
func (db *DB) JobFinished(ctx context.Context, req *types.TransformRequest, outcome types.Outcome) error {
	query := `
		UPDATE transform_jobs
		SET status = $1,
		    output_name = NULLIF($2, ''),
		    error_message = NULLIF($3, ''),
		    total_time_seconds = $4,
		    rows_written = $5,
		    completed_at = NOW()
		WHERE request_id = $6 AND file_id = $7
	`

	result, err := db.ExecContext(ctx, query,
		string(outcome.Status), outcome.OutputName, outcome.Error,
		outcome.TotalTime, outcome.Rows,
		req.RequestID, req.FileID,
	)
	if err != nil {
		return fmt.Errorf("failed to record job outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("job not found: %s/%s", req.RequestID, req.FileID)
	}

	return nil
}

// ListJobs returns every file recorded for a request
func (db *DB) ListJobs(ctx context.Context, requestID string) ([]*Job, error) {
	query := `
		SELECT request_id, file_id, file_path, status, output_name,
		       error_message, total_time_seconds, rows_written, attempts,
		       started_at, completed_at
		FROM transform_jobs
		WHERE request_id = $1
		ORDER BY started_at ASC
	`

	rows, err := db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job := &Job{}
		err := rows.Scan(
			&job.RequestID,
			&job.FileID,
			&job.FilePath,
			&job.Status,
			&job.OutputName,
			&job.ErrorMessage,
			&job.TotalTimeSeconds,
			&job.RowsWritten,
			&job.Attempts,
			&job.StartedAt,
			&job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}
