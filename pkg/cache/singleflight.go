package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader 带防击穿的读穿缓存
// 同一 key 的并发未命中只执行一次 load，结果写回缓存
type Loader[T any] struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader 创建读穿加载器
func NewLoader[T any](c Cache, ttl time.Duration) *Loader[T] {
	return &Loader[T]{cache: c, ttl: ttl}
}

// Get 读缓存，未命中时调用 load 并回填
// load 返回错误时不写缓存，错误原样返回给所有等待者
func (l *Loader[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	err := l.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheNotFound) {
		var zero T
		return zero, err
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		// 共享一次加载，不受首个调用方取消影响
		lctx := context.WithoutCancel(ctx)
		val, err := load(lctx)
		if err != nil {
			return nil, err
		}
		_ = l.cache.Set(lctx, key, val, l.ttl)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget 删除缓存并丢弃进行中的加载
func (l *Loader[T]) Forget(ctx context.Context, key string) error {
	l.group.Forget(key)
	return l.cache.Delete(ctx, key)
}

// Remember 标准读穿操作（不防击穿），适合非热点数据
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var result T
	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}
	result, err := fn()
	if err != nil {
		return result, err
	}
	_ = c.Set(ctx, key, result, ttl)
	return result, nil
}
