package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"franklin/pkg/client/s3"
)

const DefaultURLExpiry = 2 * time.Hour

type S3Repo struct {
	StorageS3 *s3.StorageS3
	// URLExpiry bounds how long presigned links stay valid.
	URLExpiry time.Duration
}

func NewS3Repo(storageS3 *s3.StorageS3) *S3Repo {
	return &S3Repo{
		StorageS3: storageS3,
		URLExpiry: DefaultURLExpiry,
	}
}

func (s *S3Repo) Upload(ctx context.Context, key string, file []byte, contentType string) error {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return fmt.Errorf("s3 client not initialized")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.StorageS3.Client.PutObject(
		ctx,
		s.StorageS3.Bucket,
		key,
		bytes.NewReader(file),
		int64(len(file)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *S3Repo) GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return "", fmt.Errorf("s3 client not initialized")
	}

	presignedURL, err := s.StorageS3.Client.PresignedGetObject(ctx, s.StorageS3.Bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigned get object: %w", err)
	}
	return presignedURL.String(), nil
}

// Store uploads data and returns a presigned GET link the video provider can fetch.
func (s *S3Repo) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := s.Upload(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return s.GetPresignedURL(ctx, key, s.URLExpiry)
}
