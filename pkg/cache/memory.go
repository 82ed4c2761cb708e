package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 进程内缓存实现，单实例部署或测试使用
type memoryCache struct {
	cache      *gocache.Cache
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

func newMemoryCache(cfg *Config) *memoryCache {
	mc := cfg.Memory
	if mc == nil {
		mc = DefaultMemoryConfig()
	}
	return &memoryCache{
		cache:      gocache.New(mc.DefaultExpiration, mc.CleanupInterval),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

func (m *memoryCache) buildKey(key string) string {
	return m.keyPrefix + key
}

// Get 获取缓存
func (m *memoryCache) Get(_ context.Context, key string, value any) error {
	data, found := m.cache.Get(m.buildKey(key))
	if !found {
		return ErrCacheNotFound
	}

	raw, ok := data.([]byte)
	if !ok {
		return fmt.Errorf("%w: invalid cache data type %T", ErrCacheSerialization, data)
	}
	if err := m.serializer.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	return nil
}

// Set 设置缓存；ttl 为 0 时使用默认 TTL
func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := m.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	m.cache.Set(m.buildKey(key), raw, ttl)
	return nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(m.buildKey(key))
	}
	return nil
}

// Exists 检查键是否存在
func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, found := m.cache.Get(m.buildKey(key))
	return found, nil
}

// TTL 获取键的剩余生存时间，-1 表示永不过期
func (m *memoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	_, expiration, found := m.cache.GetWithExpiration(m.buildKey(key))
	if !found {
		return 0, ErrCacheNotFound
	}
	if expiration.IsZero() {
		return -1, nil
	}

	ttl := time.Until(expiration)
	if ttl <= 0 {
		return 0, ErrCacheNotFound
	}
	return ttl, nil
}

// Expire 重设键的过期时间
func (m *memoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	fullKey := m.buildKey(key)
	data, found := m.cache.Get(fullKey)
	if !found {
		return ErrCacheNotFound
	}
	m.cache.Set(fullKey, data, ttl)
	return nil
}

// Ping 内存缓存始终可用
func (m *memoryCache) Ping(context.Context) error {
	return nil
}

// Close 清空缓存
func (m *memoryCache) Close() error {
	m.cache.Flush()
	return nil
}

// String 返回缓存描述
func (m *memoryCache) String() string {
	return fmt.Sprintf("MemoryCache(prefix=%s, items=%d)", m.keyPrefix, m.cache.ItemCount())
}
