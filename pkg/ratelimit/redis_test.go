package ratelimit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func newTestRedis(t *testing.T, limit int) (*Redis, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	rl := NewRedis(client, limit, log)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, mr, &now
}

func TestRedisAllow(t *testing.T) {
	rl, _, _ := newTestRedis(t, 2)
	ctx := context.Background()

	if !rl.Allow(ctx, "u1") || !rl.Allow(ctx, "u1") {
		t.Fatal("first two requests must be admitted")
	}
	if rl.Allow(ctx, "u1") {
		t.Error("third request within the window must be denied")
	}
}

func TestRedisPerUser(t *testing.T) {
	rl, _, _ := newTestRedis(t, 1)
	ctx := context.Background()

	if !rl.Allow(ctx, "u1") {
		t.Fatal("u1 first request denied")
	}
	if !rl.Allow(ctx, "u2") {
		t.Error("u2 must have an independent window")
	}
}

func TestRedisRemaining(t *testing.T) {
	rl, _, _ := newTestRedis(t, 3)
	ctx := context.Background()

	if got := rl.Remaining(ctx, "u1"); got != 3 {
		t.Errorf("fresh user remaining = %d, want 3", got)
	}
	rl.Allow(ctx, "u1")
	rl.Allow(ctx, "u1")
	if got := rl.Remaining(ctx, "u1"); got != 1 {
		t.Errorf("remaining = %d, want 1", got)
	}
}

func TestRedisFailsOpen(t *testing.T) {
	rl, mr, _ := newTestRedis(t, 1)
	ctx := context.Background()

	rl.Allow(ctx, "u1")
	mr.Close()
	if !rl.Allow(ctx, "u1") {
		t.Error("redis outage must fail open")
	}
}

func TestRedisWindowExpiry(t *testing.T) {
	rl, _, now := newTestRedis(t, 2)
	ctx := context.Background()

	rl.Allow(ctx, "u1")
	rl.Allow(ctx, "u1")
	if rl.Allow(ctx, "u1") {
		t.Fatal("expected denial at capacity")
	}

	*now = now.Add(Window + time.Second)
	if !rl.Allow(ctx, "u1") {
		t.Error("expected admit after window expiry")
	}
}
