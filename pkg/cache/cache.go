// Package cache 观影状态等短期数据的键值缓存，后端为 go-cache（单实例）或 redis（多实例共享）
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Cache 键值缓存，值经 Serializer 编码后存储
// Get 未命中返回 ErrCacheNotFound；Set 的 ttl 为 0 时使用配置的 DefaultTTL
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// Serializer 值编码
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer 默认编码，与 socket 帧使用同一 JSON 实现
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
