// Package cache は短縮URLのリダイレクト先キャッシュを提供する。
// キャッシュはPostgreSQLの前段に置く最適化で、失敗してもリダイレクトは
// DBにフォールバックする。
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL はリダイレクト先をキャッシュする既定の期間。
const DefaultTTL = time.Hour

const keyPrefix = "url:"

// DestinationCache はエイリアスからリダイレクト先へのキャッシュ。
type DestinationCache interface {
	// Get はキャッシュ済みのリダイレクト先を返す。未キャッシュの場合は ok=false。
	Get(ctx context.Context, alias string) (destination string, ok bool, err error)
	// Set はリダイレクト先をキャッシュする。
	Set(ctx context.Context, alias, destination string) error
	// Delete はキャッシュを破棄する。編集・削除時に呼ぶ。
	Delete(ctx context.Context, alias string) error
}

// RedisDestinationCache はRedisを使用したDestinationCache。
type RedisDestinationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// コンパイル時にインターフェースの実装を検証する。
var _ DestinationCache = (*RedisDestinationCache)(nil)

// NewRedisDestinationCache はRedisDestinationCacheを生成する。
// ttlが0以下の場合はDefaultTTLを使用する。
func NewRedisDestinationCache(client *redis.Client, ttl time.Duration) *RedisDestinationCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDestinationCache{client: client, ttl: ttl}
}

// Get はキャッシュ済みのリダイレクト先を返す。
func (c *RedisDestinationCache) Get(ctx context.Context, alias string) (string, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+alias).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cached destination: %w", err)
	}
	return val, true, nil
}

// Set はリダイレクト先をTTL付きでキャッシュする。
func (c *RedisDestinationCache) Set(ctx context.Context, alias, destination string) error {
	if err := c.client.Set(ctx, keyPrefix+alias, destination, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache destination: %w", err)
	}
	return nil
}

// Delete はキャッシュを破棄する。
func (c *RedisDestinationCache) Delete(ctx context.Context, alias string) error {
	if err := c.client.Del(ctx, keyPrefix+alias).Err(); err != nil {
		return fmt.Errorf("failed to delete cached destination: %w", err)
	}
	return nil
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Nop は何もキャッシュしないDestinationCache。REDIS_URL未設定時に使用する。
type Nop struct{}

var _ DestinationCache = Nop{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Set(context.Context, string, string) error         { return nil }
func (Nop) Delete(context.Context, string) error              { return nil }
