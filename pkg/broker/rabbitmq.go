package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// RabbitMQPublisher 基于 amqp091 的发布器，主题作为 routing key
type RabbitMQPublisher struct {
	conn *amqp.Connection
	cfg  *RabbitMQConfig
	log  logger.Logger

	// amqp.Channel 不支持并发发布
	mu      sync.Mutex
	channel *amqp.Channel
	closed  bool
}

// NewRabbitMQ 连接 RabbitMQ 并声明交换机
func NewRabbitMQ(_ context.Context, cfg *RabbitMQConfig, log logger.Logger) (*RabbitMQPublisher, error) {
	if cfg == nil {
		cfg = DefaultRabbitMQConfig()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("broker: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: amqp channel: %w", err)
	}

	if cfg.Exchange != "" {
		kind := cfg.ExchangeType
		if kind == "" {
			kind = amqp.ExchangeTopic
		}
		if err := ch.ExchangeDeclare(cfg.Exchange, kind, cfg.Durable, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("broker: amqp declare exchange: %w", err)
		}
	}

	log.Info("rabbitmq publisher connected", zap.String("exchange", cfg.Exchange))
	return &RabbitMQPublisher{conn: conn, channel: ch, cfg: cfg, log: log}, nil
}

// Publish 发布消息
func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrEmptyTopic
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	err := p.channel.PublishWithContext(ctx,
		p.cfg.Exchange,
		msg.Topic,
		p.cfg.Mandatory,
		false,
		publishing(msg, p.cfg.Durable),
	)
	if err != nil {
		return fmt.Errorf("broker: amqp publish: %w", err)
	}
	return nil
}

// Close 关闭通道和连接
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.channel.Close(); err != nil {
		p.log.Warn("rabbitmq channel close failed", zap.Error(err))
	}
	return p.conn.Close()
}

func publishing(msg Message, durable bool) amqp.Publishing {
	pub := amqp.Publishing{
		ContentType: "application/json",
		Body:        msg.Value,
		Timestamp:   time.Now(),
		MessageId:   msg.Key,
	}
	if durable {
		pub.DeliveryMode = amqp.Persistent
	}
	if len(msg.Headers) > 0 {
		pub.Headers = amqp.Table{}
		for k, v := range msg.Headers {
			pub.Headers[k] = v
		}
	}
	return pub
}
