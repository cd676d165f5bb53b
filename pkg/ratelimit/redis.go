package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "ileguard:rl:"

// Redis is the distributed limiter variant: one sorted set per user scored
// by nanosecond timestamps. Multiple server instances sharing a Redis see a
// single combined window.
type Redis struct {
	client *redis.Client
	limit  int
	log    *logrus.Logger
	now    func() time.Time
}

// NewRedis builds a Redis-backed limiter admitting up to limit requests per
// user per window.
func NewRedis(client *redis.Client, limit int, log *logrus.Logger) *Redis {
	return &Redis{client: client, limit: limit, log: log, now: time.Now}
}

// Allow trims expired entries, checks capacity, and records the request.
// Redis unavailability fails open with a warning: losing rate limiting is
// preferable to refusing every turn.
func (r *Redis) Allow(ctx context.Context, userID string) bool {
	key := redisKeyPrefix + userID
	now := r.now()
	cutoff := strconv.FormatInt(now.Add(-Window).UnixNano(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).Warn("rate limiter redis unavailable, failing open")
		return true
	}
	if card.Val() >= int64(r.limit) {
		return false
	}

	pipe = r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, Window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).Warn("rate limiter redis record failed")
	}
	return true
}

// Remaining reports the user's remaining capacity in the current window.
func (r *Redis) Remaining(ctx context.Context, userID string) int {
	key := redisKeyPrefix + userID
	cutoff := strconv.FormatInt(r.now().Add(-Window).UnixNano(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return r.limit
	}
	if remaining := r.limit - int(card.Val()); remaining > 0 {
		return remaining
	}
	return 0
}
