package logger

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Format 日志编码格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// IsValid 是否为支持的格式
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Config 日志配置
type Config struct {
	Level  Level
	Format Format // 默认 json

	// 输出：三者都未设置时输出到 stdout
	Console bool
	File    string        // 追加写入，不轮转
	Rotate  *RotateConfig // lumberjack 轮转文件

	Sampling *SamplingConfig // nil 不采样

	EnableCaller     bool
	EnableStacktrace bool // Error 及以上附带堆栈

	EncoderConfig *zapcore.EncoderConfig
	Hooks         []Hook
}

// RotateConfig 轮转文件，零值字段使用默认值
type RotateConfig struct {
	Filename   string
	MaxSize    int // MB，默认 100
	MaxAge     int // 天，默认 30
	MaxBackups int // 默认 10
	LocalTime  bool
	Compress   bool
}

// SamplingConfig 每个 Tick 内同一条消息前 Initial 条全部记录，之后每 Thereafter 条记录一条
type SamplingConfig struct {
	Tick       time.Duration // 默认 1s
	Initial    int           // 默认 100
	Thereafter int           // 默认 100
}

// Hook 日志写入前回调；返回错误时该条日志不再写出
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// HookFunc 函数形式的 Hook
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) error

// OnWrite 实现 Hook
func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	return f(entry, fields)
}

func defaultConfig() *Config {
	return &Config{
		Level:            InfoLevel,
		Format:           JSONFormat,
		Console:          true,
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Format != "" && !c.Format.IsValid() {
		errs = append(errs, fmt.Errorf("logger: unsupported format %q", c.Format))
	}
	if c.Level < DebugLevel || c.Level > FatalLevel {
		errs = append(errs, fmt.Errorf("logger: level %d out of range", c.Level))
	}
	if c.Rotate != nil && c.Rotate.Filename == "" {
		errs = append(errs, errors.New("logger: rotate filename is required"))
	}
	if s := c.Sampling; s != nil && (s.Initial < 0 || s.Thereafter < 0 || s.Tick < 0) {
		errs = append(errs, errors.New("logger: sampling values must not be negative"))
	}
	return errors.Join(errs...)
}

// normalized 返回补全默认值后的副本，不修改调用方的配置
func (c *Config) normalized() *Config {
	out := *c
	if out.Format == "" {
		out.Format = JSONFormat
	}
	if !out.Console && out.File == "" && out.Rotate == nil {
		out.Console = true
	}
	if c.Rotate != nil {
		r := *c.Rotate
		if r.MaxSize == 0 {
			r.MaxSize = 100
		}
		if r.MaxAge == 0 {
			r.MaxAge = 30
		}
		if r.MaxBackups == 0 {
			r.MaxBackups = 10
		}
		out.Rotate = &r
	}
	if c.Sampling != nil {
		s := *c.Sampling
		if s.Tick == 0 {
			s.Tick = time.Second
		}
		if s.Initial == 0 {
			s.Initial = 100
		}
		if s.Thereafter == 0 {
			s.Thereafter = 100
		}
		out.Sampling = &s
	}
	return &out
}
