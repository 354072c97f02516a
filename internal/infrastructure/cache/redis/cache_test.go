package redis

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestCacheRoundTripAgainstLiveRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cache := New(Config{Address: addr, KeyPrefix: "docchat-test:"})
	defer cache.Close()
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, ok, err := cache.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("unexpected get result %q ok=%v err=%v", value, ok, err)
	}
}

func TestGetReportsConnectionFailure(t *testing.T) {
	cache := New(Config{Address: "127.0.0.1:1"})
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, ok, err := cache.Get(ctx, "k"); err == nil || ok {
		t.Fatalf("expected connection error, got ok=%v err=%v", ok, err)
	}
}
