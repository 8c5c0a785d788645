package ratelimiter

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, defaults BucketConfig) *RedisLuaLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisLuaLimiter(rdb, defaults)
}

func TestAllow_NilLimiter_FailOpen(t *testing.T) {
	ctx := context.Background()
	var limiter *RedisLuaLimiter

	allowed, retryAfter, err := limiter.Allow(ctx, CustomerKey(1), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed to be true for nil limiter")
	}
	if retryAfter != 0 {
		t.Fatalf("expected zero retryAfter, got %v", retryAfter)
	}
}

func TestAllow_LimitsDisabled_FailOpen(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(t, NewBucketConfigFromPerMinute(0))

	allowed, retryAfter, err := limiter.Allow(ctx, CustomerKey(7), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed to be true when limits are disabled")
	}
	if retryAfter != 0 {
		t.Fatalf("expected zero retryAfter, got %v", retryAfter)
	}
}

func TestAllow_DefaultBucket_RespectsCapacityAndRetryAfter(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(t, BucketConfig{Capacity: 3, RefillRate: 0.000001})

	key := CustomerKey(42)
	for i := 0; i < 3; i++ {
		allowed, retryAfter, err := limiter.Allow(ctx, key, 1)
		if err != nil {
			t.Fatalf("unexpected error on allowed call %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("expected allowed=true on call %d", i)
		}
		if retryAfter != 0 {
			t.Fatalf("expected retryAfter=0 on allowed call %d, got %v", i, retryAfter)
		}
	}

	allowed, retryAfter, err := limiter.Allow(ctx, key, 1)
	if err != nil {
		t.Fatalf("unexpected script error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter to deny once capacity exhausted")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retryAfter when capacity exhausted, got %v", retryAfter)
	}
}

func TestAllow_CustomersDrainIndependentBuckets(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(t, BucketConfig{Capacity: 1, RefillRate: 0.000001})

	allowed, _, err := limiter.Allow(ctx, CustomerKey(1), 1)
	if err != nil || !allowed {
		t.Fatalf("expected first customer allowed, got allowed=%v err=%v", allowed, err)
	}
	allowed, _, err = limiter.Allow(ctx, CustomerKey(1), 1)
	if err != nil || allowed {
		t.Fatalf("expected first customer exhausted, got allowed=%v err=%v", allowed, err)
	}

	allowed, _, err = limiter.Allow(ctx, CustomerKey(2), 1)
	if err != nil || !allowed {
		t.Fatalf("expected second customer unaffected, got allowed=%v err=%v", allowed, err)
	}
}

func TestAllow_OverrideBeatsDefault(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(t, BucketConfig{Capacity: 1, RefillRate: 0.000001})

	key := CustomerKey(9)
	limiter.SetBucketConfig(key, BucketConfig{Capacity: 5, RefillRate: 0.000001})

	for i := 0; i < 5; i++ {
		allowed, _, err := limiter.Allow(ctx, key, 1)
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("expected override capacity to admit call %d", i)
		}
	}
	allowed, _, err := limiter.Allow(ctx, key, 1)
	if err != nil {
		t.Fatalf("unexpected error after exhaustion: %v", err)
	}
	if allowed {
		t.Fatalf("expected override capacity exhausted after 5 calls")
	}
}
