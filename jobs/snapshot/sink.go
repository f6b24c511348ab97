package snapshot

import (
	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
)

// NewSyncProducer connects the snapshot feed producer. Every message of
// a snapshot must be acknowledged before the next snapshot starts.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot: connect %v", brokers)
	}
	return producer, nil
}
