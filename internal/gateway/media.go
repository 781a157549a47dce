package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/civic-desk/issue-sync/internal/config"
)

// S3Signer presigns complaint image URLs on an S3-compatible bucket.
type S3Signer struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

var _ MediaSigner = (*S3Signer)(nil)

// NewS3Signer builds a signer from media settings. The region must be set so
// presigning never has to ask the bucket for its location.
func NewS3Signer(cfg config.MediaConfig) (*S3Signer, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("media region is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Signer{client: client, bucket: cfg.Bucket, expiry: cfg.Expiry()}, nil
}

// ObjectKey is where the citizen app uploads the photo of a complaint.
func ObjectKey(userID, complaintID string) string {
	return fmt.Sprintf("complaints/%s/%s/image.jpg", userID, complaintID)
}

// SignedImageURL presigns a GET for the complaint image.
func (s *S3Signer) SignedImageURL(ctx context.Context, userID, complaintID string) (string, error) {
	if userID == "" || complaintID == "" {
		return "", nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ObjectKey(userID, complaintID), s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ObjectKey(userID, complaintID), err)
	}
	return u.String(), nil
}
