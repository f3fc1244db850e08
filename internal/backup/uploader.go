// Package backup pushes storage snapshots to S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/recordbase/recordbase/internal/config"
	"github.com/recordbase/recordbase/internal/storage"
)

// Uploader writes backup snapshots to a bucket. A nil Uploader is valid and
// uploads nothing, so callers don't need to branch on configuration.
type Uploader struct {
	client *minio.Client
	bucket string
}

// NewUploader builds an uploader from config and ensures the bucket exists.
// Returns (nil, nil) when no endpoint is configured.
func NewUploader(cfg config.BackupConfig) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	u := &Uploader{client: mc, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, xerr := mc.BucketExists(ctx, u.bucket)
		if xerr != nil || !exists {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return u, nil
}

// Upload serializes the snapshot and stores it under a timestamped key.
// Returns the object key.
func (u *Uploader) Upload(ctx context.Context, b storage.Backup) (string, error) {
	if u == nil {
		return "", nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}
	key := fmt.Sprintf("backups/%s.json", time.Now().UTC().Format("20060102T150405Z"))
	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}
	return key, nil
}
