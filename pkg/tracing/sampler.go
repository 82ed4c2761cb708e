package tracing

import (
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// samplerOption 根据配置选择采样器
// 设置了 OTEL_TRACES_SAMPLER 时不传采样器，由 SDK 按环境变量构建
func samplerOption(cfg *Config) []sdktrace.TracerProviderOption {
	if os.Getenv("OTEL_TRACES_SAMPLER") != "" {
		return nil
	}

	var s sdktrace.Sampler
	switch cfg.SamplingType {
	case "always":
		s = sdktrace.AlwaysSample()
	case "never":
		s = sdktrace.NeverSample()
	case "ratio":
		s = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	default:
		s = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))
	}
	return []sdktrace.TracerProviderOption{sdktrace.WithSampler(s)}
}
