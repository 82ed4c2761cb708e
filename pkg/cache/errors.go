package cache

import "github.com/tokmz/marquee/pkg/errors"

// 预定义错误
var (
	ErrCacheNotFound      = errors.New(4001, 404, "cache key not found", nil)
	ErrCacheConnection    = errors.New(4003, 503, "cache connection failed", nil)
	ErrCacheSerialization = errors.New(4004, 500, "cache serialization failed", nil)
	ErrCacheInvalidConfig = errors.New(4005, 500, "cache invalid config", nil)
	ErrCacheOperation     = errors.New(4006, 500, "cache operation failed", nil)
)
