package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultPresignExpiry = 72 * time.Hour

// MinIOConfig holds connection settings for an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore uploads artifacts to a bucket and hands out presigned GET URLs.
type MinIOStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	logger *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

// NewMinIOStore connects to the configured endpoint. The bucket is created
// lazily on first Put.
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		expiry: defaultPresignExpiry,
		logger: slog.Default(),
	}, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketErr = fmt.Errorf("checking bucket %s: %w", s.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			s.bucketErr = fmt.Errorf("creating bucket %s: %w", s.bucket, err)
			return
		}
		s.logger.Info("created media bucket", "bucket", s.bucket)
	})
	return s.bucketErr
}

// Put uploads r as key. size may be -1 when unknown.
func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	s.logger.Debug("uploaded media", "bucket", s.bucket, "key", key)
	return u.String(), nil
}
