// Package config loads, normalizes, and validates the fsoi TOML configuration.
//
// Values come from the built-in defaults, then the config file, then the
// process environment (DATA_BUCKET, OBJECT_PREFIX, CACHE_BUCKET, FSOI_ROOT_DIR,
// AWS credentials, REDIS_ADDR).
package config
