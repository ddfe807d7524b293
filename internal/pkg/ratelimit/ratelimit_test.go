package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, "test:ratelimit", 1, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected allow within burst, denied at %d", i)
		}
	}

	ok, wait, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatalf("expected deny after burst exhausted")
	}
	if wait <= 0 {
		t.Fatalf("expected positive wait hint, got %v", wait)
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, "test:ratelimit", 1, 1)

	ctx := context.Background()
	if ok, _, _ := limiter.Allow(ctx, "1.1.1.1"); !ok {
		t.Fatalf("first key should pass")
	}
	if ok, _, _ := limiter.Allow(ctx, "1.1.1.1"); ok {
		t.Fatalf("first key should be exhausted")
	}
	if ok, _, _ := limiter.Allow(ctx, "2.2.2.2"); !ok {
		t.Fatalf("second key should have its own bucket")
	}
}

func TestLimiter_Refill(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewLimiter(rdb, "test:ratelimit", 20, 1)

	ctx := context.Background()
	if ok, _, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("warm allow failed")
	}
	if ok, _, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatalf("expected deny before refill")
	}

	time.Sleep(100 * time.Millisecond)
	if ok, _, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("expected allow after refill")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(nil, "test:ratelimit", 0, 0)
	for i := 0; i < 10; i++ {
		ok, wait, err := limiter.Allow(context.Background(), "any")
		if err != nil || !ok || wait != 0 {
			t.Fatalf("disabled limiter should always allow: ok=%v wait=%v err=%v", ok, wait, err)
		}
	}
}
