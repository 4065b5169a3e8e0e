package storage

import (
	"context"
	"errors"

	"fsoi/internal/config"
)

var (
	// ErrObjectNotFound marks a download whose key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrBucketNotFound marks an operation against a missing bucket.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrAccessDenied marks credential or policy failures.
	ErrAccessDenied = errors.New("access denied")
)

// ObjectStore downloads and uploads whole objects by key.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key, localPath string) error
	Upload(ctx context.Context, bucket, key, localPath string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// New returns the store selected by the storage configuration.
func New(cfg *config.Config) (ObjectStore, error) {
	if cfg.UsesLocalStorage() {
		return NewLocalStore(cfg.Storage.LocalRoot)
	}
	return NewS3Store(S3Options{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
}
