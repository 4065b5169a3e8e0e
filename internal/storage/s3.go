package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3Store.
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// S3Store implements ObjectStore on an S3-compatible endpoint.
type S3Store struct {
	client *minio.Client
}

// NewS3Store builds a client. Endpoint may be a bare host[:port] or a URL;
// an https scheme forces TLS.
func NewS3Store(opts S3Options) (*S3Store, error) {
	host, secure, err := parseEndpoint(opts.Endpoint, opts.UseSSL)
	if err != nil {
		return nil, err
	}
	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		return nil, errors.New("s3 credentials are required")
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &S3Store{client: client}, nil
}

func parseEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, errors.New("s3 endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint URL %q: missing host", endpoint)
	}
	return u.Host, useSSL || u.Scheme == "https", nil
}

// Download fetches bucket/key into localPath, creating parent directories.
func (s *S3Store) Download(ctx context.Context, bucket, key, localPath string) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("%w: bucket and key are required", ErrObjectNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	if err := s.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, classifyMinioError(err))
	}
	return nil
}

// Upload stores localPath at bucket/key.
func (s *S3Store) Upload(ctx context.Context, bucket, key, localPath string) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("%w: bucket and key are required", ErrBucketNotFound)
	}
	opts := minio.PutObjectOptions{ContentType: contentType(localPath)}
	if _, err := s.client.FPutObject(ctx, bucket, key, localPath, opts); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, classifyMinioError(err))
	}
	return nil
}

// BucketExists reports whether bucket is reachable with the configured credentials.
func (s *S3Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if bucket == "" {
		return false, nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, classifyMinioError(err)
	}
	return exists, nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// classifyMinioError tags minio-go errors with the package sentinels while
// keeping the original error in the chain.
func classifyMinioError(err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey":
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such bucket"):
		return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
	case strings.Contains(msg, "no such key"), strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return err
}
