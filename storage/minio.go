// Package storage keeps archived copies of resolved tracks in object
// storage and hands out presigned URLs for them.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"TrackHound/config"
	"TrackHound/logger"
)

const bucketCheckTimeout = 10 * time.Second

// ObjectStore is the slice of object storage the archiver needs.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// Store wraps the MinIO client with the single bucket the engine archives to.
type Store struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

// NewStore connects to MinIO and makes sure the archive bucket exists.
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &Store{client: client, bucket: cfg.MinioBucket, log: logger.Named("storage")}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bucketCheckTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.log.Info("created archive bucket", logger.String("bucket", s.bucket))
	return nil
}

// Exists reports whether an object is already in the bucket.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return true, nil
}

// Put uploads one object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return nil
}

// PresignedGet returns a time-limited URL for an archived object.
func (s *Store) PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// Remove deletes an archived object.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}

// BucketStats summarizes the archive bucket contents.
type BucketStats struct {
	Objects      int64     `json:"objects"`
	TotalSize    int64     `json:"totalSize"`
	LastModified time.Time `json:"lastModified"`
}

// Stats walks the bucket under prefix and totals object count and size.
func (s *Store) Stats(ctx context.Context, prefix string) (BucketStats, error) {
	var stats BucketStats
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for object := range s.client.ListObjects(ctx, s.bucket, opts) {
		if object.Err != nil {
			return stats, fmt.Errorf("failed to list bucket %s: %w", s.bucket, object.Err)
		}
		stats.Objects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}
