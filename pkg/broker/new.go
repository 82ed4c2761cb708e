package broker

import (
	"context"

	"github.com/tokmz/marquee/pkg/logger"
)

// New 根据配置创建发布器
func New(ctx context.Context, cfg *Config, log logger.Logger) (Publisher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverKafka:
		return NewKafka(cfg.Kafka, log)
	case DriverRabbitMQ:
		return NewRabbitMQ(ctx, cfg.RabbitMQ, log)
	default:
		return NewNoop(), nil
	}
}
