// Package queue persists job status records keyed by request fingerprint.
//
// Store is the SQLite backend: it holds the status record (status, message,
// progress), the set of subscriber channels, and, for the daemon, the queued
// request payload, the final response and heartbeat bookkeeping used to claim
// and reclaim work. RedisStore is a shared alternative for the status record
// and subscriber set only; both satisfy StatusStore.
//
// The database is transient storage for in-flight and recently finished jobs.
// Schema changes bump schemaVersion in schema.go; operators clear the
// database to adopt the new schema.
package queue
