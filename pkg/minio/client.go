package minio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// InitMinIOClient initializes and returns a MinIO client
func InitMinIOClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minIO client init error: %w", err)
	}

	slog.Info("minio client initialized", "endpoint", endpoint)
	return minioClient, nil
}

// EnsureBucketExists ensures a bucket exists, creates it if not
func EnsureBucketExists(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("error checking bucket: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			// Another worker of the same request may have won the race.
			if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
				return nil
			}
			return fmt.Errorf("error creating bucket: %w", err)
		}
		slog.Info("created bucket", "bucket", bucketName)
	}

	return nil
}
