package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/marquee"
)

const httpTracerName = "github.com/tokmz/marquee/middleware"

// TracingConfig 链路追踪中间件配置
type TracingConfig struct {
	// ExcludePaths 精确排除，如健康检查与指标
	ExcludePaths []string
	// ExcludePrefixes 前缀排除，socket 升级路由的 span 会跨越整个连接生命周期
	ExcludePrefixes []string
}

// DefaultTracingConfig 追踪全部请求
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{}
}

func (cfg *TracingConfig) skips() func(path string) bool {
	exact := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		exact[p] = struct{}{}
	}
	prefixes := append([]string(nil), cfg.ExcludePrefixes...)
	return func(path string) bool {
		if _, ok := exact[path]; ok {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

// Tracing 为每个请求创建 server span
// 上游 traceparent 作为父 span，trace_id 写入 Context 并随 traceparent 响应头返回
func Tracing(cfgs ...*TracingConfig) marquee.HandlerFunc {
	cfg := DefaultTracingConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	skip := cfg.skips()

	return func(c *marquee.Context) {
		r := c.Request()
		if skip(r.URL.Path) {
			c.Next()
			return
		}

		// Provider 可能晚于中间件初始化，每次请求取全局实例
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := c.FullPath()
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
			semconv.ServerAddress(r.Host),
			semconv.UserAgentOriginalKey.String(r.UserAgent()),
			attribute.String("client.address", c.ClientIP()),
		}
		name := r.Method + " " + r.URL.Path
		if route != "" {
			name = r.Method + " " + route
			attrs = append(attrs, semconv.HTTPRouteKey.String(route))
		}

		ctx, span := otel.Tracer(httpTracerName).Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		marquee.SetContextTraceID(c, span.SpanContext().TraceID().String())
		c.SetRequestContext(ctx)
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer().Header()))

		c.Next()

		status := c.Writer().Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if err := c.Err(); err != nil {
			span.RecordError(err)
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
