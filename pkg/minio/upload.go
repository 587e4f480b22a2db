package minio

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
)

const parquetContentType = "application/vnd.apache.parquet"

// Store uploads result files to MinIO. With an empty bucket every request gets
// a bucket named after its request id; otherwise results are written to the
// shared bucket under a "<request-id>/" prefix.
type Store struct {
	client *minio.Client
	bucket string

	mu    sync.Mutex
	ready map[string]bool
}

// NewStore creates a Store.
func NewStore(client *minio.Client, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		ready:  make(map[string]bool),
	}
}

// Upload uploads the file at localPath under key for requestID.
func (s *Store) Upload(ctx context.Context, requestID, key, localPath string) error {
	bucket, object := objectLocation(s.bucket, requestID, key)

	if err := s.ensureBucket(ctx, bucket); err != nil {
		return err
	}

	info, err := s.client.FPutObject(ctx, bucket, object, localPath, minio.PutObjectOptions{
		ContentType: parquetContentType,
	})
	if err != nil {
		return fmt.Errorf("upload object error: %w", err)
	}

	slog.Info("uploaded result", "bucket", bucket, "object", object, "size", info.Size)
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready[bucket] {
		return nil
	}
	if err := EnsureBucketExists(ctx, s.client, bucket); err != nil {
		return err
	}
	s.ready[bucket] = true
	return nil
}

// objectLocation resolves the bucket and object name for a result.
func objectLocation(sharedBucket, requestID, key string) (string, string) {
	if sharedBucket == "" {
		return requestID, key
	}
	return sharedBucket, path.Join(requestID, key)
}
