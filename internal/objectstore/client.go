// Package objectstore wraps minio-go as the execution subsystem's
// object store: content-addressed bundle and input bytes in, presigned
// download URLs out, output bytes streamed back in from the worker.
// Adapted from the teacher's internal/s3 client; the key layout is
// reworked for the bundle/input/output namespaces this domain needs
// instead of a single per-runner blob.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reproserver/internal/config"
)

// Client wraps a minio client bound to a single bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

// New creates a client from the object-store section of the process config.
func New(cfg config.S3Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("objectstore: endpoint, bucket, access key and secret key are all required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create minio client: %w", err)
	}

	return &Client{mc: mc, bucket: cfg.Bucket}, nil
}

// BundleKey is the object key for a bundle's content, addressed by hash.
func BundleKey(hash string) string {
	return fmt.Sprintf("bundles/%s", hash)
}

// InputKey is the object key for an uploaded input file, addressed by hash.
func InputKey(hash string) string {
	return fmt.Sprintf("inputs/%s", hash)
}

// OutputKey is the object key for a run's output file.
func OutputKey(runID int64, name string) string {
	return fmt.Sprintf("outputs/%d/%s", runID, name)
}

// PresignedBundleURL returns a time-limited download URL for a bundle.
func (c *Client) PresignedBundleURL(ctx context.Context, hash string, expiry time.Duration) (string, error) {
	return c.presignedGet(ctx, BundleKey(hash), expiry)
}

// PresignedInputURL returns a time-limited download URL for an input file.
func (c *Client) PresignedInputURL(ctx context.Context, hash string, expiry time.Duration) (string, error) {
	return c.presignedGet(ctx, InputKey(hash), expiry)
}

func (c *Client) presignedGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("objectstore: presigned get s3://%s/%s: %w", c.bucket, key, err)
	}
	return u.String(), nil
}

// UploadOutput streams an output file's bytes into the store, keyed by
// run id and output name, and returns the sha256 hex digest computed
// while streaming (spec §4.1: "hash ... which the connector computes
// if not supplied").
func (c *Client) UploadOutput(ctx context.Context, runID int64, name string, r io.Reader, size int64) (string, error) {
	hashed := newHashingReader(r)
	key := OutputKey(runID, name)

	_, err := c.mc.PutObject(ctx, c.bucket, key, hashed, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: upload output s3://%s/%s: %w", c.bucket, key, err)
	}
	return hashed.HexDigest(), nil
}

// UploadInput streams a submitted input file into the store at its
// content hash, so it's shared across uploads that collide.
func (c *Client) UploadInput(ctx context.Context, hash string, r io.Reader, size int64) error {
	key := InputKey(hash)
	_, err := c.mc.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("objectstore: upload input s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// UploadBundle streams bundle bytes into the store at its content hash.
func (c *Client) UploadBundle(ctx context.Context, hash string, r io.Reader, size int64) error {
	key := BundleKey(hash)
	_, err := c.mc.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("objectstore: upload bundle s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// TestConnection checks that the configured bucket exists and is reachable.
func (c *Client) TestConnection(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("objectstore: bucket %q does not exist", c.bucket)
	}
	return nil
}

// EnsureBucket creates the configured bucket if it doesn't already exist.
func (c *Client) EnsureBucket(ctx context.Context, region string) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: check bucket existence: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("objectstore: create bucket %q: %w", c.bucket, err)
		}
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
