package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/waste-analyzer/internal/config"
	"github.com/menta2k/waste-analyzer/pkg/processing"
)

// Object is a stored image.
type Object struct {
	Key string
	URL string
}

// ImageStore persists captured images and hands out URLs for them.
type ImageStore interface {
	PutImage(ctx context.Context, data []byte, contentType string) (Object, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}

var _ ImageStore = (*Store)(nil)

// Store keeps images in an S3-compatible bucket.
type Store struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("Created bucket")
	}

	expiry := cfg.URLExpiry
	// S3 caps presigned URLs at seven days
	if expiry <= 0 || expiry > 7*24*time.Hour {
		expiry = 7 * 24 * time.Hour
	}
	return &Store{client: cli, bucket: cfg.Bucket, expiry: expiry}, nil
}

// NewKey returns a fresh object key images/<uuid>.<ext> for the MIME type.
func NewKey(contentType string) string {
	ext := "jpg"
	switch contentType {
	case "image/png":
		ext = processing.Extension("png")
	case "image/webp":
		ext = processing.Extension("webp")
	case "image/gif":
		ext = processing.Extension("gif")
	}
	return fmt.Sprintf("images/%s.%s", uuid.NewString(), ext)
}

// PutImage uploads data under a new key and returns a presigned GET URL.
func (s *Store) PutImage(ctx context.Context, data []byte, contentType string) (Object, error) {
	key := NewKey(contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}

	u, err := s.PresignedURL(ctx, key)
	if err != nil {
		return Object{}, err
	}
	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Stored image")
	return Object{Key: key, URL: u}, nil
}

// PresignedURL signs a GET URL for key.
func (s *Store) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
