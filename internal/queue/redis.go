package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fsoi/internal/config"
)

// RedisStore keeps status records in Redis so several hosts can share them.
// Each fingerprint owns a hash (<prefix>:job:<fp>) and a subscriber set
// (<prefix>:job:<fp>:subscribers).
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
}

// OpenRedis connects to status_store.redis_addr and verifies the server answers.
func OpenRedis(cfg *config.Config) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.StatusStore.RedisAddr)
	if addr == "" {
		return nil, errors.New("missing status_store.redis_addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, cfg.StatusStore.RedisKeyPrefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *goredis.Client, prefix string) *RedisStore {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "fsoi"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// JobKey returns the hash key holding the record for fingerprint.
func (r *RedisStore) JobKey(fingerprint string) string {
	return r.prefix + ":job:" + fingerprint
}

// SubscribersKey returns the set key holding subscriber channels.
func (r *RedisStore) SubscribersKey(fingerprint string) string {
	return r.JobKey(fingerprint) + ":subscribers"
}

// updateStatusScript writes the status hash atomically. ARGV: status,
// message, progress, now, and the status a PENDING write must not replace.
var updateStatusScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if ARGV[1] == 'PENDING' and current == ARGV[5] then
  return 0
end
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[4])
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'message', ARGV[2], 'progress', ARGV[3], 'updated_at', ARGV[4])
return 1
`)

// UpdateStatus upserts the status hash. created_at is written only once, and
// a PENDING write never replaces a RUNNING record.
func (r *RedisStore) UpdateStatus(ctx context.Context, fingerprint string, status Status, message string, progress int) error {
	if strings.TrimSpace(fingerprint) == "" {
		return errors.New("update status: fingerprint is required")
	}
	now := formatTime(time.Now())
	err := updateStatusScript.Run(ctx, r.rdb, []string{r.JobKey(fingerprint)},
		string(status),
		message,
		clampProgress(progress),
		now,
		string(StatusRunning),
	).Err()
	if err != nil {
		return fmt.Errorf("redis update status: %w", err)
	}
	return nil
}

// Get returns the record and its subscribers, or nil when absent.
func (r *RedisStore) Get(ctx context.Context, fingerprint string) (*Job, error) {
	fields, err := r.rdb.HGetAll(ctx, r.JobKey(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	subs, err := r.rdb.SMembers(ctx, r.SubscribersKey(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get subscribers: %w", err)
	}
	sort.Strings(subs)
	return jobFromHash(fingerprint, fields, subs), nil
}

func jobFromHash(fingerprint string, fields map[string]string, subs []string) *Job {
	job := &Job{
		Fingerprint: fingerprint,
		Status:      Status(fields["status"]),
		Message:     fields["message"],
		Subscribers: subs,
	}
	if progress, err := strconv.Atoi(fields["progress"]); err == nil {
		job.Progress = progress
	}
	if created, err := parseTimeString(fields["created_at"]); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(fields["updated_at"]); err == nil {
		job.UpdatedAt = updated
	}
	return job
}

// AddSubscriber adds channel to the fingerprint's subscriber set.
func (r *RedisStore) AddSubscriber(ctx context.Context, fingerprint, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("add subscriber: channel is required")
	}
	if err := r.rdb.SAdd(ctx, r.SubscribersKey(fingerprint), channel).Err(); err != nil {
		return fmt.Errorf("redis add subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber removes channel from the subscriber set.
func (r *RedisStore) RemoveSubscriber(ctx context.Context, fingerprint, channel string) error {
	if err := r.rdb.SRem(ctx, r.SubscribersKey(fingerprint), channel).Err(); err != nil {
		return fmt.Errorf("redis remove subscriber: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.rdb == nil {
		return errors.New("redis status store not initialized")
	}
	return r.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisStore) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
