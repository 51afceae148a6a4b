// Package kafka wraps sarama consumer groups and producers for JSON messages.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"autopilot/logging"

	"github.com/IBM/sarama"
)

// ErrUnmarked is returned by ConsumeClaim when a message is left unmarked
var ErrUnmarked = errors.New("kafka: message left unmarked")

// MessageHandler processes one consumed message. If shouldMark is false the
// message is not marked and the claim stops so it can be retried.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message []byte) (shouldMark bool, err error)
}

// Consumer feeds one topic of a consumer group into a MessageHandler
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	topic   string
	logger  logging.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler MessageHandler
	Logger  logging.Logger

	// FromOldest replays the retained topic when the group has no offset yet
	FromOldest bool
}

func saramaConsumerConfig(cfg ConsumerConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.ClientID = "autopilot"
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.FromOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Return.Errors = true
	return sc
}

// NewConsumer connects a consumer group for cfg.Topic
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConsumerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", cfg.GroupID, err)
	}
	return NewConsumerFromGroup(group, cfg), nil
}

// NewConsumerFromGroup wraps an existing group; Brokers in cfg are ignored
func NewConsumerFromGroup(group sarama.ConsumerGroup, cfg ConsumerConfig) *Consumer {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Consumer{
		group:   group,
		handler: cfg.Handler,
		topic:   cfg.Topic,
		logger:  logger.WithFields(logging.Fields{"topic": cfg.Topic, "group": cfg.GroupID}),
		ready:   make(chan struct{}),
	}
}

// Start consumes in the background and returns once the first session is
// set up. Consumption continues across rebalances until ctx ends or Close.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{
		messageHandler: c.handler,
		onSetup:        func() { c.readyOnce.Do(func() { close(c.ready) }) },
		logger:         c.logger,
	}
	go c.run(ctx, handler)

	select {
	case <-c.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.logger.Info("Kafka consumer started")

	go func() {
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("Kafka consumer error")
		}
	}()
	return nil
}

func (c *Consumer) run(ctx context.Context, handler sarama.ConsumerGroupHandler) {
	for {
		err := c.group.Consume(ctx, []string{c.topic}, handler)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, sarama.ErrClosedConsumerGroup):
			c.logger.Info("Kafka consumer stopped")
			return
		case err != nil:
			c.logger.WithError(err).Error("Kafka consume failed")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close leaves the group
func (c *Consumer) Close() error {
	c.logger.Info("Closing Kafka consumer")
	return c.group.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	messageHandler MessageHandler
	onSetup        func()
	logger         logging.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.onSetup != nil {
		h.onSetup()
	}
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim hands each message to the handler and marks it when told to.
// An unmarked message ends the claim, which ends the session; the next
// session resumes from the last marked offset so the message is redelivered
// and nothing after it is marked first.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			entry := h.logger.WithFields(logging.Fields{
				"partition": message.Partition,
				"offset":    message.Offset,
				"key":       string(message.Key),
			})
			entry.Debug("Received Kafka message")

			shouldMark, err := h.messageHandler.HandleMessage(session.Context(), message.Value)
			if !shouldMark {
				if err == nil {
					err = ErrUnmarked
				}
				entry.WithError(err).Error("Failed to handle message, stopping claim for redelivery")
				return fmt.Errorf("partition %d offset %d: %w", message.Partition, message.Offset, err)
			}
			if err != nil {
				entry.WithError(err).Warn("Message handled with error")
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// TypedMessageHandler decodes JSON messages into T before processing
type TypedMessageHandler[T any] struct {
	// Validate checks if the message should be processed
	Validate func(msg *T) error
	// Process handles the actual message processing
	Process func(ctx context.Context, msg *T) error
	// AlwaysMark marks undecodable or invalid messages so they are skipped
	AlwaysMark bool
	Logger     logging.Logger
}

// HandleMessage implements MessageHandler
func (h *TypedMessageHandler[T]) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var msg T
	if err := json.Unmarshal(message, &msg); err != nil {
		h.log().WithError(err).Warn("Failed to unmarshal message")
		return h.AlwaysMark, nil
	}

	if h.Validate != nil {
		if err := h.Validate(&msg); err != nil {
			h.log().WithError(err).Warn("Rejected invalid message")
			return h.AlwaysMark, nil
		}
	}

	if err := h.Process(ctx, &msg); err != nil {
		return false, err
	}
	return true, nil
}

func (h *TypedMessageHandler[T]) log() logging.Logger {
	if h.Logger == nil {
		return logging.Discard()
	}
	return h.Logger
}
