// Package kafka publishes the incremental market data feed.
package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	BatchSize    int
	// WriteTimeout and MaxAttempts bound how long one WriteMessages call
	// can take against an unreachable broker.
	WriteTimeout time.Duration
	MaxAttempts  int
}

// Producer writes one message per incremental update. Every message of
// the feed carries the same key so the hash balancer keeps them on one
// partition, in sequence order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: cfg.BatchTimeout,
			BatchSize:    cfg.BatchSize,
			WriteTimeout: cfg.WriteTimeout,
			MaxAttempts:  cfg.MaxAttempts,
		},
	}
}

func (p *Producer) Send(
	ctx context.Context,
	key []byte,
	value []byte,
) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
	return errors.Wrapf(err, "kafka: write to %s", p.writer.Topic)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
