package broker

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// KafkaPublisher 基于 sarama 同步生产者的发布器
type KafkaPublisher struct {
	producer sarama.SyncProducer
	log      logger.Logger
	closed   atomic.Bool
}

// NewKafka 连接 Kafka 集群
func NewKafka(cfg *KafkaConfig, log logger.Logger) (*KafkaPublisher, error) {
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("broker: kafka producer: %w", err)
	}
	log.Info("kafka publisher connected", zap.Strings("brokers", cfg.Brokers))
	return NewKafkaWithProducer(producer, log), nil
}

// NewKafkaWithProducer 使用已有的生产者
func NewKafkaWithProducer(producer sarama.SyncProducer, log logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &KafkaPublisher{producer: producer, log: log}
}

// Publish 发送消息并等待确认
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if msg.Topic == "" {
		return ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if msg.Key != "" {
		pm.Key = sarama.StringEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("broker: kafka send: %w", err)
	}
	p.log.DebugContext(ctx, "kafka message sent",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.producer.Close()
}

func saramaConfig(cfg *KafkaConfig) (*sarama.Config, error) {
	if cfg == nil {
		cfg = DefaultKafkaConfig()
	}
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.MaxRetries > 0 {
		sc.Producer.Retry.Max = cfg.MaxRetries
	}
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
		sc.Net.DialTimeout = cfg.Timeout
	}

	acks, err := requiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	sc.Producer.RequiredAcks = acks

	codec, err := compression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	sc.Producer.Compression = codec

	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("broker: kafka version: %w", err)
		}
		sc.Version = v
	}
	return sc, sc.Validate()
}

func requiredAcks(s string) (sarama.RequiredAcks, error) {
	switch strings.ToLower(s) {
	case "none":
		return sarama.NoResponse, nil
	case "", "leader":
		return sarama.WaitForLocal, nil
	case "all":
		return sarama.WaitForAll, nil
	default:
		return 0, fmt.Errorf("broker: unsupported required acks %q", s)
	}
}

func compression(s string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("broker: unsupported compression %q", s)
	}
}
