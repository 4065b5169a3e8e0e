package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fsoi/internal/fileutil"
)

// LocalStore persists objects on disk: bucket b and key k live at
// <root>/<b>/<k>.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local object store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the directory backing the store.
func (s *LocalStore) Root() string {
	return s.root
}

// ObjectPath returns the file that holds bucket/key.
func (s *LocalStore) ObjectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: invalid bucket %q", ErrBucketNotFound, bucket)
	}
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if key == "" || clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid key %q", ErrObjectNotFound, key)
	}
	return filepath.Join(s.root, bucket, clean), nil
}

// Download copies bucket/key to localPath.
func (s *LocalStore) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.ObjectPath(bucket, key)
	if err != nil {
		return err
	}
	if exists, err := s.BucketExists(ctx, bucket); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	if !fileutil.FileExists(src) {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err := fileutil.CopyFile(src, localPath); err != nil {
		return fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Upload copies localPath to bucket/key, creating the bucket directory.
func (s *LocalStore) Upload(ctx context.Context, bucket, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.ObjectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := fileutil.CopyFile(localPath, dst); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// BucketExists reports whether the bucket directory exists.
func (s *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if bucket == "" {
		return false, nil
	}
	info, err := os.Stat(filepath.Join(s.root, bucket))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
