package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider 包装 SDK TracerProvider，负责安装全局实例与关闭
type Provider struct {
	tp       *sdktrace.TracerProvider
	previous trace.TracerProvider
}

// Option 创建选项
type Option func(*options)

type options struct {
	stdout    io.Writer
	processor sdktrace.SpanProcessor
}

// WithWriter stdout 导出器的输出目标
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithSpanProcessor 追加 SpanProcessor（测试中挂接 SpanRecorder）
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processor = p }
}

// New 创建 TracerProvider 并设为全局；Enabled 为 false 时安装 noop 实现
func New(ctx context.Context, cfg *Config, opts ...Option) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	p := &Provider{previous: otel.GetTracerProvider()}
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return p, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tpOpts := append(samplerOption(cfg), sdktrace.WithResource(res))
	exporter, err := newExporter(ctx, cfg, o.stdout)
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		))
	}
	if o.processor != nil {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(o.processor))
	}

	p.tp = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// Shutdown 导出剩余 Span 并恢复之前的全局 Provider
func (p *Provider) Shutdown(ctx context.Context) error {
	otel.SetTracerProvider(p.previous)
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// newResource 服务信息与自定义属性；OTEL_RESOURCE_ATTRIBUTES 由 WithFromEnv 处理
func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}
