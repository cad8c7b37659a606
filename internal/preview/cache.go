package preview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/bookmarkman/internal/model"
)

// Cache はプレビュー結果のキャッシュ。
type Cache interface {
	// Get はキャッシュ済みのプレビューを返す。存在しない場合はnil, nil。
	Get(ctx context.Context, rawURL string) (*model.Preview, error)
	Set(ctx context.Context, rawURL string, p *model.Preview) error
}

// NopCache は何もキャッシュしない。REDIS_URL未設定時に使用する。
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*model.Preview, error) { return nil, nil }
func (NopCache) Set(context.Context, string, *model.Preview) error   { return nil }

// RedisCache はプレビュー結果をJSONとしてRedisに保存する。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache はRedisCacheを生成する。
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, rawURL string) (*model.Preview, error) {
	data, err := c.client.Get(ctx, cacheKey(rawURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preview cache: %w", err)
	}

	var p model.Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode preview cache: %w", err)
	}
	return &p, nil
}

func (c *RedisCache) Set(ctx context.Context, rawURL string, p *model.Preview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preview cache: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(rawURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set preview cache: %w", err)
	}
	return nil
}

// cacheKey はURLのSHA-256をキーに使う。
func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "bookmarkman:preview:" + hex.EncodeToString(sum[:])
}
