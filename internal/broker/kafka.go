package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"memorabilia-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: writer}
}

// PublishEvent publishes an event to Kafka keyed by aggregate id
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Forward writes a message that could not be handled to the producer's topic,
// recording the failure and its origin in headers
func (p *Producer) Forward(ctx context.Context, msg kafka.Message, cause error) error {
	if err := p.writer.WriteMessages(ctx, deadLetterMessage(msg, cause)); err != nil {
		return fmt.Errorf("failed to dead-letter message: %w", err)
	}
	return nil
}

func deadLetterMessage(msg kafka.Message, cause error) kafka.Message {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
		kafka.Header{Key: "x-source-topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "x-source-partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "x-source-offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
	)
	return kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// DeadLetterSink takes messages that failed every handler attempt
type DeadLetterSink interface {
	Forward(ctx context.Context, msg kafka.Message, cause error) error
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader     *kafka.Reader
	deadLetter DeadLetterSink
	retryDelay time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{reader: reader, retryDelay: 5 * time.Second}
}

// WithDeadLetter sends messages that exhaust their attempts to sink so the
// partition can move on
func (c *Consumer) WithDeadLetter(sink DeadLetterSink) *Consumer {
	c.deadLetter = sink
	return c
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// handlerAttempts bounds in-process retries of a failing message
const handlerAttempts = 3

// StartConsuming fetches messages until ctx is done. Offsets are committed per
// partition, so a message is committed only once it was handled or
// dead-lettered; until then the consumer keeps retrying it and does not fetch
// past it.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	logger := util.Named("broker").With(zap.String("topic", c.reader.Config().Topic))
	logger.Info("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("Consumer context cancelled, stopping")
				return nil
			}
			logger.Error("Error fetching message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.settle(ctx, logger, handler, msg); err != nil {
			logger.Info("Consumer context cancelled, stopping")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Warn("Error committing message", zap.Error(err))
		}
	}
}

// settle returns nil once msg was handled or dead-lettered, and ctx.Err()
// when ctx ends first
func (c *Consumer) settle(ctx context.Context, logger *zap.Logger, handler MessageHandler, msg kafka.Message) error {
	for {
		err := handleWithRetry(ctx, handler, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("Error handling message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))

		if c.deadLetter != nil {
			dlqErr := c.deadLetter.Forward(ctx, msg, err)
			if dlqErr == nil {
				logger.Warn("Message dead-lettered",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset))
				return nil
			}
			logger.Error("Error dead-lettering message", zap.Error(dlqErr))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func handleWithRetry(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == handlerAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	return err
}
