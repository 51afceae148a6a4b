package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Producer publishes JSON messages synchronously
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects a sync producer that waits for all in-sync replicas
func NewProducer(brokers []string) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Net.DialTimeout = 5 * time.Second

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &Producer{producer: p}, nil
}

// NewProducerFrom wraps an existing sync producer
func NewProducerFrom(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

// PublishJSON encodes v and sends it to topic under key
func (p *Producer) PublishJSON(topic, key string, v any) (partition int32, offset int64, err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	return p.producer.SendMessage(msg)
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
