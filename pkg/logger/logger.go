// Package logger 基于 zap 的结构化日志，支持运行时调整级别与上下文字段提取
package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	DPanic(msg string, fields ...zap.Field)
	Panic(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)

	// 以下方法附加 ctx 中的 trace_id、span_id、user_id、socket_id
	DebugContext(ctx context.Context, msg string, fields ...zap.Field)
	InfoContext(ctx context.Context, msg string, fields ...zap.Field)
	WarnContext(ctx context.Context, msg string, fields ...zap.Field)
	ErrorContext(ctx context.Context, msg string, fields ...zap.Field)

	With(fields ...zap.Field) Logger
	WithContext(ctx context.Context) Logger
	Sync() error

	// SetLevel 对同源的所有子 Logger 生效
	SetLevel(level Level)
	Level() Level
	Zap() *zap.Logger
}

type logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// New 按配置创建 Logger，cfg 为 nil 时输出 json 到 stdout
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	level := zap.NewAtomicLevelAt(cfg.Level.toZapLevel())
	core, err := buildCore(cfg, level)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return &logger{zap: zap.New(core, opts...), level: level}, nil
}

// NewWithOptions 以默认配置为基础应用选项
func NewWithOptions(opts ...Option) (Logger, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// NewProduction json 输出，Info 级别，不记录调用位置
func NewProduction() (Logger, error) {
	return NewWithOptions(WithCaller(false))
}

// NewDevelopment console 输出，Debug 级别
func NewDevelopment() (Logger, error) {
	return NewWithOptions(WithLevel(DebugLevel), WithFormat(ConsoleFormat))
}

// FromZap 包装已有的 zap.Logger（如测试中的 observer），初始级别取 core 的最低启用级别
func FromZap(z *zap.Logger) Logger {
	level := zap.NewAtomicLevelAt(zapcore.FatalLevel)
	for lv := zapcore.DebugLevel; lv <= zapcore.FatalLevel; lv++ {
		if z.Core().Enabled(lv) {
			level.SetLevel(lv)
			break
		}
	}
	wrapped := z.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &levelCore{Core: c, level: level}
	}))
	return &logger{zap: wrapped, level: level}
}

// NewNop 丢弃全部输出
func NewNop() Logger {
	return &logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// ============ 日志方法 ============

func (l *logger) Debug(msg string, fields ...zap.Field)  { l.zap.Debug(msg, fields...) }
func (l *logger) Info(msg string, fields ...zap.Field)   { l.zap.Info(msg, fields...) }
func (l *logger) Warn(msg string, fields ...zap.Field)   { l.zap.Warn(msg, fields...) }
func (l *logger) Error(msg string, fields ...zap.Field)  { l.zap.Error(msg, fields...) }
func (l *logger) DPanic(msg string, fields ...zap.Field) { l.zap.DPanic(msg, fields...) }
func (l *logger) Panic(msg string, fields ...zap.Field)  { l.zap.Panic(msg, fields...) }
func (l *logger) Fatal(msg string, fields ...zap.Field)  { l.zap.Fatal(msg, fields...) }

func (l *logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(contextFields(ctx, fields)...)
	}
}

func (l *logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(contextFields(ctx, fields)...)
	}
}

func (l *logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(contextFields(ctx, fields)...)
	}
}

func (l *logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	if ce := l.zap.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(contextFields(ctx, fields)...)
	}
}

// contextFields 只在级别启用后调用，避免无谓的 ctx 查找
func contextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	out := extractFields(ctx)
	if ctx != nil {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasSpanID() {
			out = append(out, zap.String("span_id", sc.SpanID().String()))
		}
	}
	return append(out, fields...)
}

// ============ 派生与控制 ============

func (l *logger) With(fields ...zap.Field) Logger {
	return &logger{zap: l.zap.With(fields...), level: l.level}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	return l.With(extractFields(ctx)...)
}

func (l *logger) Sync() error { return l.zap.Sync() }

func (l *logger) SetLevel(level Level) { l.level.SetLevel(level.toZapLevel()) }

func (l *logger) Level() Level { return fromZapLevel(l.level.Level()) }

func (l *logger) Zap() *zap.Logger { return l.zap }
