package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdfme/transformer-service/pkg/types"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	processingTTL = time.Hour
	finishedTTL   = 24 * time.Hour
)

type RedisCache struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		DB:           0,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func fileKey(requestID, fileID string) string {
	return fmt.Sprintf("transform:%s:%s", requestID, fileID)
}

// GetFileStatus gets the status of a file from cache
// Returns: "completed", "failed", "processing", or empty string if not found
func (r *RedisCache) GetFileStatus(ctx context.Context, requestID, fileID string) (string, error) {
	status, err := r.client.Get(ctx, fileKey(requestID, fileID)).Result()
	if err == redis.Nil {
		return "", nil // Not found
	}
	if err != nil {
		return "", fmt.Errorf("failed to get file status from Redis: %w", err)
	}

	return status, nil
}

// SetFileStatus sets the status of a file in cache
func (r *RedisCache) SetFileStatus(ctx context.Context, requestID, fileID, status string, ttl time.Duration) error {
	err := r.client.Set(ctx, fileKey(requestID, fileID), status, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set file status in Redis: %w", err)
	}

	return nil
}

// JobStarted marks the file as processing for up to an hour.
func (r *RedisCache) JobStarted(ctx context.Context, req *types.TransformRequest) error {
	return r.SetFileStatus(ctx, req.RequestID, req.FileID, StatusProcessing, processingTTL)
}

// JobFinished records the terminal status of the file for a day.
func (r *RedisCache) JobFinished(ctx context.Context, req *types.TransformRequest, outcome types.Outcome) error {
	status := StatusCompleted
	if outcome.Status != types.CompletionSuccess {
		status = StatusFailed
	}
	return r.SetFileStatus(ctx, req.RequestID, req.FileID, status, finishedTTL)
}
