package minio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"finsight/internal/config"
)

var (
	client  *Client
	once    sync.Once
	initErr error
)

// Client wraps the MinIO SDK with the bucket the service archives
// uploaded balance-sheet files into.
type Client struct {
	api    *minio.Client
	bucket string
}

// GetClient connects to MinIO once for the process lifetime and makes
// sure the archive bucket exists.
func GetClient(ctx context.Context, cfg *config.MinIOConfig) (*Client, error) {
	once.Do(func() {
		api, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			initErr = fmt.Errorf("creating MinIO client: %w", err)
			return
		}

		exists, err := api.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			initErr = fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
			return
		}
		if !exists {
			if err := api.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
				initErr = fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
				return
			}
		}

		client = &Client{api: api, bucket: cfg.Bucket}
	})

	return client, initErr
}

// Archive stores an uploaded file under objectName.
func (c *Client) Archive(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := c.api.PutObject(ctx, c.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("archiving %s: %w", objectName, err)
	}
	return nil
}

// HealthCheck lists buckets to verify connectivity and credentials.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("minio client not initialized")
	}
	_, err := client.api.ListBuckets(ctx)
	return err
}
