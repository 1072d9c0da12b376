// Package minio provides a storage.BlobStore backed by any
// S3-compatible object storage, for deployments that keep large
// objects off the local disk.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the remote blob store configuration.
type Config struct {
	// Endpoint is the server URL (e.g. "localhost:9000").
	Endpoint string
	// Region is the bucket region, may be empty.
	Region string
	// Bucket is the bucket name.
	Bucket string
	// AccessKey is the access key id for authentication.
	AccessKey string
	// SecretKey is the secret access key for authentication.
	SecretKey string
	// UseSSL enables HTTPS connections.
	UseSSL bool
	// Prefix is an optional prefix for all object keys.
	Prefix string

	// Client is an optional pre-configured client. If provided,
	// Endpoint, AccessKey and SecretKey are ignored.
	Client *minio.Client
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	return nil
}

// BlobStore is a storage.BlobStore over an S3-compatible bucket.
type BlobStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewBlobStore creates a remote blob store from cfg.
func NewBlobStore(cfg Config) (*BlobStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	}

	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put uploads data under key and returns the object key as location.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	location := s.join(key)

	_, err := s.client.PutObject(ctx, s.bucket, location,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", err
	}

	return location, nil
}

// Get downloads the object stored at location.
func (s *BlobStore) Get(ctx context.Context, location string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, location, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

func (s *BlobStore) join(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}
