package tracing

import (
	"fmt"
	"time"
)

// 导出器类型
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Config 链路追踪配置
type Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`

	// 导出器：otlp-http, otlp-grpc, stdout, noop
	Exporter string            `mapstructure:"exporter"`
	Endpoint string            `mapstructure:"endpoint"` // 为空时读取 OTEL_EXPORTER_OTLP_ENDPOINT
	Headers  map[string]string `mapstructure:"headers"`
	Insecure bool              `mapstructure:"insecure"`

	// 采样：always, never, ratio, parent_based；设置 OTEL_TRACES_SAMPLER 时由 SDK 接管
	SamplingType string  `mapstructure:"sampling_type"`
	SamplingRate float64 `mapstructure:"sampling_rate"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	// 批处理
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		ServiceName:        "marquee",
		ServiceVersion:     "dev",
		Environment:        "development",
		Exporter:           ExporterStdout,
		SamplingType:       "parent_based",
		SamplingRate:       1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &ConfigError{message: "service name is required"}
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return &ConfigError{message: "sampling rate must be between 0.0 and 1.0"}
	}
	switch c.Exporter {
	case ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return &ConfigError{message: fmt.Sprintf("invalid exporter type: %q", c.Exporter)}
	}
	return nil
}

// ConfigError 配置错误
type ConfigError struct {
	message string
}

func (e *ConfigError) Error() string {
	return "tracing config error: " + e.message
}
