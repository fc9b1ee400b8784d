// Package blob stores chart images attached to trades.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/config"
	"trade-journal/internal/security"
)

// ObjectStore is a flat key/value object store addressed by URL once written.
type ObjectStore interface {
	// Put writes r under key and returns the object's URL.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)

	// Open reads the object at url. Returns errors.ErrObjectNotFound if missing.
	Open(ctx context.Context, url string) (io.ReadCloser, error)

	// Delete removes the object at url. Returns errors.ErrObjectNotFound if missing.
	Delete(ctx context.Context, url string) error
}

// ImageKey returns the object key for an uploaded image:
// images/{unix millis}_{sanitized filename}.
func ImageKey(now time.Time, filename string) string {
	return fmt.Sprintf("images/%d_%s", now.UnixMilli(), security.SanitizeFilename(filename))
}

// New builds the object store selected by configuration.
func New(ctx context.Context, cfg config.StorageConfig, creds config.S3Credentials, logger zerolog.Logger) (ObjectStore, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			UsePathStyle:    cfg.UsePathStyle,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
