package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	leaderboardPages = "leaderboard:page:"
	leaderboardGen   = "leaderboard:gen"
)

// RedisCache keeps leaderboard pages as JSON under
// prefix+"leaderboard:page:<gen>:<limit>". Invalidate bumps the generation so
// a page computed before a winner report can never be read after it.
type RedisCache struct {
	c      *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(c *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{c: c, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) key(gen int64, limit int) string {
	return fmt.Sprintf("%s%s%d:%d", r.prefix, leaderboardPages, gen, limit)
}

// Generation returns the current cache generation; 0 before the first
// invalidation.
func (r *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := r.c.Get(ctx, r.prefix+leaderboardGen).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisCache) Leaderboard(ctx context.Context, gen int64, limit int) ([]store.PlayerRecord, bool, error) {
	raw, err := r.c.Get(ctx, r.key(gen, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var recs []store.PlayerRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, false, fmt.Errorf("decode cached leaderboard: %w", err)
	}
	return recs, true, nil
}

func (r *RedisCache) SetLeaderboard(ctx context.Context, gen int64, limit int, recs []store.PlayerRecord) error {
	raw, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return r.c.Set(ctx, r.key(gen, limit), raw, r.ttl).Err()
}

// Invalidate advances the generation and deletes the pages already written.
func (r *RedisCache) Invalidate(ctx context.Context) error {
	if err := r.c.Incr(ctx, r.prefix+leaderboardGen).Err(); err != nil {
		return err
	}
	iter := r.c.Scan(ctx, 0, r.prefix+leaderboardPages+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }
