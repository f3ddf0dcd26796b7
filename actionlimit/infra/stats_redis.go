package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"action-limiter/actionlimit/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	// total e por categoria são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão), "hour" ou "none"
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "actionlimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := outcome(ev)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if layout := bucketLayout(s.bucket); layout != "" {
		bucketKey := fmt.Sprintf("%s:%s:%s", s.prefix, s.bucket, at.UTC().Format(layout))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if c := strings.TrimSpace(string(ev.Category)); c != "" && !ev.Unlimited {
		pipe.HIncrBy(ctx, s.prefix+":category", c+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func bucketLayout(bucket string) string {
	switch bucket {
	case "minute":
		return "200601021504"
	case "hour":
		return "2006010215"
	default:
		return ""
	}
}

func outcome(ev domain.StatsEvent) string {
	switch {
	case ev.Unlimited:
		return "unlimited"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}
