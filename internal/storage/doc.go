// Package storage moves objects between buckets and local files.
//
// S3Store talks to any S3-compatible endpoint through minio-go; LocalStore
// maps buckets to directories under a root and backs development setups and
// tests. Both report missing objects with ErrObjectNotFound.
package storage
