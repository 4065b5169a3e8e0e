package artifacts

import (
	"context"
	"fmt"
	"log/slog"

	"fsoi/internal/fileutil"
	"fsoi/internal/logging"
)

// Uploader is the subset of the object store used for caching.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, localPath string) error
}

// Cache uploads expected artifacts into a bucket.
type Cache struct {
	store  Uploader
	bucket string
	logger *slog.Logger
}

// NewCache constructs a cache writer for bucket.
func NewCache(store Uploader, bucket string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{store: store, bucket: bucket, logger: logger}
}

// Bucket returns the destination bucket.
func (c *Cache) Bucket() string {
	return c.bucket
}

// Store resolves every template against substitutions, uploads the files
// that exist, and returns the stored keys in template order. Missing files are
// skipped; an upload error aborts the call.
func (c *Cache) Store(ctx context.Context, fingerprint string, templates []Template, substitutions map[string]string) ([]string, error) {
	logger := logging.WithContext(ctx, c.logger)
	keys := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		path := tmpl.Resolve(substitutions)
		if !fileutil.FileExists(path) {
			logger.Debug("expected artifact missing", logging.String("path", path))
			continue
		}
		key := tmpl.Key(fingerprint, path)
		if err := c.store.Upload(ctx, c.bucket, key, path); err != nil {
			return keys, fmt.Errorf("cache %s: %w", key, err)
		}
		logger.Info("artifact cached",
			logging.String(logging.FieldEventType, "artifact_cached"),
			logging.String("bucket", c.bucket),
			logging.String("key", key),
		)
		keys = append(keys, key)
	}
	return keys, nil
}

// StoreSummary caches the summary plots for each center.
func (c *Cache) StoreSummary(ctx context.Context, fingerprint, summaryRoot string, centers, cycles []string) ([]string, error) {
	cycle := CycleString(cycles)
	var keys []string
	for _, center := range centers {
		stored, err := c.Store(ctx, fingerprint, SummaryTemplates(summaryRoot), map[string]string{
			CenterPlaceholder: center,
			CyclePlaceholder:  cycle,
		})
		keys = append(keys, stored...)
		if err != nil {
			return keys, err
		}
	}
	return keys, nil
}

// StoreCompare caches the comparison plots.
func (c *Cache) StoreCompare(ctx context.Context, fingerprint, compareRoot string, cycles []string) ([]string, error) {
	return c.Store(ctx, fingerprint, CompareTemplates(compareRoot), map[string]string{
		CyclePlaceholder: CycleString(cycles),
	})
}
