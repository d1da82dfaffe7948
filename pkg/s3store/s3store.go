// Package s3store lists and downloads snapshot objects from the S3 bucket an
// AWS Config delivery channel writes to.
package s3store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 client used here.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client lists and downloads objects from one region's S3 endpoint.
type Client struct {
	api    API
	logger *slog.Logger
}

// New wraps an S3 API client.
func New(api API, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger.With("component", "s3store"),
	}
}

// NewFromConfig builds a Client from a loaded AWS config.
func NewFromConfig(cfg aws.Config, logger *slog.Logger) *Client {
	return New(s3.NewFromConfig(cfg), logger)
}

// ListKeys returns every key in bucket, in the order S3 enumerates them,
// following continuation tokens across pages.
func (c *Client) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing bucket %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	c.logger.Debug("bucket listed", "bucket", bucket, "keys", len(keys))
	return keys, nil
}

// Download copies bucket/key to path, replacing any existing file, and
// returns the number of bytes written.
func (c *Client) Download(ctx context.Context, bucket, key, path string) (int64, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating download directory: %w", err)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", tmp, err)
	}
	n, err := io.Copy(f, out.Body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("renaming %s: %w", tmp, err)
	}
	c.logger.Debug("snapshot downloaded", "bucket", bucket, "key", key, "path", path, "bytes", n)
	return n, nil
}
