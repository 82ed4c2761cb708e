package cache

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const cacheTracerName = "github.com/tokmz/marquee/pkg/cache"

// tracedCache 链路追踪缓存装饰器
type tracedCache struct {
	Cache
	tracer trace.Tracer
}

// NewTracing 创建带链路追踪的缓存实例
func NewTracing(c Cache) Cache {
	return &tracedCache{
		Cache:  c,
		tracer: otel.Tracer(cacheTracerName),
	}
}

// span 包装一次缓存操作；缓存未命中不记为错误
func (t *tracedCache) span(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := t.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("cache.operation", op))...),
	)
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ErrCacheNotFound):
		span.SetAttributes(attribute.Bool("cache.hit", false))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Get 获取缓存
func (t *tracedCache) Get(ctx context.Context, key string, value any) error {
	return t.span(ctx, "cache.Get", func(ctx context.Context) error {
		err := t.Cache.Get(ctx, key, value)
		if err == nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", true))
		}
		return err
	}, attribute.String("cache.key", key))
}

// Set 设置缓存
func (t *tracedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return t.span(ctx, "cache.Set", func(ctx context.Context) error {
		return t.Cache.Set(ctx, key, value, ttl)
	}, attribute.String("cache.key", key), attribute.Float64("cache.ttl_seconds", ttl.Seconds()))
}

// Delete 删除缓存
func (t *tracedCache) Delete(ctx context.Context, keys ...string) error {
	return t.span(ctx, "cache.Delete", func(ctx context.Context) error {
		return t.Cache.Delete(ctx, keys...)
	}, attribute.StringSlice("cache.keys", keys))
}

// Exists 检查键是否存在
func (t *tracedCache) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := t.span(ctx, "cache.Exists", func(ctx context.Context) error {
		var err error
		ok, err = t.Cache.Exists(ctx, key)
		return err
	}, attribute.String("cache.key", key))
	return ok, err
}

// TTL 获取剩余生存时间
func (t *tracedCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	var ttl time.Duration
	err := t.span(ctx, "cache.TTL", func(ctx context.Context) error {
		var err error
		ttl, err = t.Cache.TTL(ctx, key)
		return err
	}, attribute.String("cache.key", key))
	return ttl, err
}

// Expire 设置过期时间
func (t *tracedCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return t.span(ctx, "cache.Expire", func(ctx context.Context) error {
		return t.Cache.Expire(ctx, key, ttl)
	}, attribute.String("cache.key", key), attribute.Float64("cache.ttl_seconds", ttl.Seconds()))
}

// Ping 检查连接
func (t *tracedCache) Ping(ctx context.Context) error {
	return t.span(ctx, "cache.Ping", t.Cache.Ping)
}
