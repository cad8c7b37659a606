package preview

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bookmarkman/internal/model"
)

func testRedisURL() string {
	if u := os.Getenv("TEST_REDIS_URL"); u != "" {
		return u
	}
	return "redis://localhost:6379/15"
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("https://example.com/a")
	b := cacheKey("https://example.com/b")

	if a == b {
		t.Error("different URLs should have different keys")
	}
	if !strings.HasPrefix(a, "bookmarkman:preview:") {
		t.Errorf("key = %q", a)
	}
	if a != cacheKey("https://example.com/a") {
		t.Error("key should be stable")
	}
}

func TestNopCache(t *testing.T) {
	var c NopCache
	if err := c.Set(context.Background(), "u", &model.Preview{Title: "x"}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	p, err := c.Get(context.Background(), "u")
	if err != nil || p != nil {
		t.Errorf("Get() = %v, %v; want nil, nil", p, err)
	}
}

func TestConnectRedis_InvalidURL(t *testing.T) {
	if _, err := ConnectRedis(context.Background(), "not-a-redis-url", DefaultConnectOptions()); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	opts := ConnectOptions{
		ConnectTimeout: 2 * time.Second,
		RetryInterval:  200 * time.Millisecond,
		MaxWait:        500 * time.Millisecond,
		PingTimeout:    500 * time.Millisecond,
	}
	client, err := ConnectRedis(context.Background(), testRedisURL(), opts)
	if err != nil {
		t.Skipf("Redisに接続できないためスキップ: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, time.Minute)
	target := "https://example.com/cache-" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, cacheKey(target))

	if p, err := cache.Get(ctx, target); err != nil || p != nil {
		t.Fatalf("Get() before Set = %v, %v", p, err)
	}

	want := &model.Preview{Title: "T", Summary: "S", FaviconURL: "https://example.com/favicon.ico"}
	if err := cache.Set(ctx, target, want); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := cache.Get(ctx, target)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil || *got != *want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	ttl, err := client.TTL(ctx, cacheKey(target)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, %v", ttl, err)
	}
}
