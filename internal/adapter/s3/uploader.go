// Package s3 uploads CSV reports to S3-compatible object storage.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const reportContentType = "text/csv"

type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader implements pipeline.Uploader with minio-go.
type Uploader struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewUploader creates a client for the configured endpoint. Reports are
// stored under reports/<file name>.
func NewUploader(cfg *config.Config, logger *slog.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.S3Bucket, prefix: "reports", logger: logger}, nil
}

// Upload stores the report file at path.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat report: %w", err)
	}
	key := u.ObjectKey(path)
	info, err := u.client.FPutObject(ctx, u.bucket, key, path, minio.PutObjectOptions{
		ContentType: reportContentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	u.logger.Info("report uploaded", "bucket", u.bucket, "key", key, "size", info.Size)
	return nil
}

// ObjectKey returns the object name a report is stored under.
func (u *Uploader) ObjectKey(path string) string {
	return u.prefix + "/" + filepath.Base(path)
}
