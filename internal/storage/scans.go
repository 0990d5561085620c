// Package storage fetches uploaded scans from S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/trashscanner/predictor/internal/config"
)

// ErrScanNotFound is returned when no object exists under the scan key.
var ErrScanNotFound = errors.New("scan not found")

// DefaultMaxScanBytes bounds how much of an object is read.
const DefaultMaxScanBytes = 32 << 20

// ScanKey is the object key of a user's scan.
func ScanKey(userID, photoID string) string {
	return userID + "/scans/" + photoID
}

// ScanStore downloads scans from a single bucket.
type ScanStore struct {
	client   *minio.Client
	bucket   string
	maxBytes int64
}

// NewScanStore creates the MinIO client. No request is made until the
// first Fetch.
func NewScanStore(cfg config.FilestoreConfig) (*ScanStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &ScanStore{client: client, bucket: cfg.Bucket, maxBytes: DefaultMaxScanBytes}, nil
}

func (s *ScanStore) Bucket() string {
	return s.bucket
}

// Fetch downloads the scan stored at ScanKey(userID, photoID).
func (s *ScanStore) Fetch(ctx context.Context, userID, photoID string) ([]byte, error) {
	key := ScanKey(userID, photoID)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	defer obj.Close()

	// The request is deferred until the first read, so a missing key
	// usually surfaces here.
	data, err := io.ReadAll(io.LimitReader(obj, s.maxBytes+1))
	if err != nil {
		return nil, s.translate(key, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("scan %s exceeds %d bytes", key, s.maxBytes)
	}
	return data, nil
}

func (s *ScanStore) translate(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("%w: %s/%s", ErrScanNotFound, s.bucket, key)
	case "":
		return fmt.Errorf("failed to fetch %s/%s: %w", s.bucket, key, err)
	}
	return fmt.Errorf("storage error %s: %s", resp.Code, resp.Message)
}
