package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/mealtracker/internal/config"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "u:1", 2, now)
		if err != nil || !result.Allowed {
			t.Fatalf("expected request %d allowed, got %+v (%v)", i, result, err)
		}
	}
	result, _ := limiter.Allow(ctx, "u:1", 2, now)
	if result.Allowed {
		t.Fatalf("expected third request in window to be rejected")
	}
	other, _ := limiter.Allow(ctx, "u:2", 2, now)
	if !other.Allowed {
		t.Fatalf("expected separate key to be allowed")
	}
	next, _ := limiter.Allow(ctx, "u:1", 2, now.Add(time.Second))
	if !next.Allowed || next.Remaining != 1 {
		t.Fatalf("expected fresh window, got %+v", next)
	}
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, "test")
	defer func() { _ = limiter.Close() }()

	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()
	first, errFirst := limiter.Allow(ctx, "u:1", 1, now)
	if errFirst != nil || !first.Allowed {
		t.Fatalf("expected first request allowed, got %+v (%v)", first, errFirst)
	}
	second, errSecond := limiter.Allow(ctx, "u:1", 1, now)
	if errSecond != nil || second.Allowed {
		t.Fatalf("expected second request rejected, got %+v (%v)", second, errSecond)
	}
	if !mr.Exists("test:u:1:1700000000") {
		t.Fatalf("expected window key in redis, got keys %v", mr.Keys())
	}
}

func TestManager_UsesRedisWhenEnabled(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	settings := SettingsFromConfig(config.RateLimitConfig{
		Limit: 1,
		Redis: config.RedisConfig{Enabled: true, Addr: mr.Addr()},
	})
	now := time.Unix(1_700_000_000, 0)
	manager := NewManager(StaticSettings(settings), func() time.Time { return now }, nil)
	defer func() { _ = manager.Close() }()

	decision := Resolve(manager.Limit(), 7, "10.0.0.1")
	if decision.Scope != ScopeUser {
		t.Fatalf("expected user scope, got %v", decision.Scope)
	}
	first, _ := manager.Check(context.Background(), decision)
	second, _ := manager.Check(context.Background(), decision)
	if !first.Allowed || second.Allowed {
		t.Fatalf("expected allow then reject, got %+v %+v", first, second)
	}
	if !mr.Exists(config.DefaultRateLimitRedisPrefix + ":u:7:1700000000") {
		t.Fatalf("expected redis backend to be used, got keys %v", mr.Keys())
	}
}

func TestManager_FallsBackToMemory(t *testing.T) {
	settings := SettingsFromConfig(config.RateLimitConfig{
		Limit: 1,
		Redis: config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"},
	})
	now := time.Unix(1_700_000_000, 0)
	manager := NewManager(StaticSettings(settings), func() time.Time { return now }, nil)

	decision := Resolve(manager.Limit(), 0, "10.0.0.1")
	if decision.Scope != ScopeClient || KeyForDecision(decision) != "ip:10.0.0.1" {
		t.Fatalf("expected client scope, got %+v", decision)
	}
	first, errFirst := manager.Check(context.Background(), decision)
	if errFirst != nil || !first.Allowed {
		t.Fatalf("expected memory fallback to allow, got %+v (%v)", first, errFirst)
	}
	second, _ := manager.Check(context.Background(), decision)
	if second.Allowed {
		t.Fatalf("expected memory fallback to enforce limit")
	}
}

func TestManager_DisabledLimitAllows(t *testing.T) {
	manager := NewManager(nil, nil, nil)
	decision := Resolve(manager.Limit(), 1, "")
	if decision.Scope != ScopeNone {
		t.Fatalf("expected no scope when limit is 0")
	}
	for i := 0; i < 5; i++ {
		result, err := manager.Check(context.Background(), decision)
		if err != nil || !result.Allowed {
			t.Fatalf("expected unlimited requests, got %+v (%v)", result, err)
		}
	}
}
