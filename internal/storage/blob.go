// Package storage holds raw upload bytes in an S3-compatible blob
// store so files can be reindexed after parser fixes or schema changes.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/klauspost/compress/gzip"

	"github.com/waflens/waflens/internal/config"
)

// ErrBlobNotFound reports a raw object that is no longer retrievable.
var ErrBlobNotFound = errors.New("raw blob not found")

// BlobStore uploads and downloads gzip-compressed raw files.
type BlobStore struct {
	client *s3.Client
	bucket string
}

// NewBlobStore builds an S3-compatible client for the given storage config.
// Returns nil if cfg is nil or endpoint/bucket are empty.
func NewBlobStore(cfg *config.StorageConfig) (*BlobStore, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist (HeadBucket fails → CreateBucket).
func (c *BlobStore) EnsureBucket(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	_, createErr := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if createErr != nil {
		var apiErr smithy.APIError
		if errors.As(createErr, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return createErr
	}
	return nil
}

// KeyForRaw returns the object key for a file's raw bytes, sharded by
// the first checksum byte (e.g. raw/ab/ab12...f9.gz).
func KeyForRaw(checksum string) string {
	shard := checksum
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join("raw", shard, checksum+".gz")
}

// PutRaw stores a file's exact bytes gzip-compressed under the
// checksum-derived key and returns that key.
func (c *BlobStore) PutRaw(ctx context.Context, checksum string, content []byte) (string, error) {
	if c == nil {
		return "", fmt.Errorf("blob store not configured")
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return "", fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}

	key := KeyForRaw(checksum)
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// GetRaw downloads and decompresses a retained file by key. Returns
// ErrBlobNotFound when the object no longer exists.
func (c *BlobStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store not configured")
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	zr, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
