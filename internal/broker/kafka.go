package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer}
}

// PublishEvent publishes an event to Kafka. Events sharing a key land on the same partition.
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

	err = p.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	log.Printf("Published event: key=%s, type=%T", key, event)
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ErrPermanent marks handler errors that no retry can fix. Wrap with Permanent.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the consumer commits the message instead of retrying it
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader     messageReader
	topic      string
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewConsumer creates a new Kafka consumer. Failed messages are retried with
// exponential backoff capped at maxBackoff.
func NewConsumer(brokers []string, topic, groupID string, maxBackoff time.Duration) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, topic, time.Second, maxBackoff)
}

func newConsumer(reader messageReader, topic string, backoff, maxBackoff time.Duration) *Consumer {
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	return &Consumer{reader: reader, topic: topic, backoff: backoff, maxBackoff: maxBackoff}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming consumes messages until ctx is cancelled.
// A message is committed only once it was handled or failed permanently;
// any other failure is retried, so the offset never moves past unfinished work.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	log.Printf("Starting Kafka consumer for topic: %s", c.topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Consumer context cancelled, stopping...")
				return ctx.Err()
			}
			log.Printf("Error fetching message: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if err := RetryHandler(ctx, handler, msg, c.backoff, c.maxBackoff); err != nil {
			if !errors.Is(err, ErrPermanent) {
				// Only cancellation gets here; the uncommitted message is redelivered after restart.
				return err
			}
			log.Printf("Skipping message: topic=%s, partition=%d, offset=%d, key=%s, err=%v",
				msg.Topic, msg.Partition, msg.Offset, string(msg.Key), err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("Error committing message: %v", err)
		}
	}
}

// RetryHandler runs handler until it succeeds, fails permanently or ctx ends.
// The wait between attempts doubles from backoff up to maxBackoff.
func RetryHandler(ctx context.Context, handler MessageHandler, msg kafka.Message, backoff, maxBackoff time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}

		log.Printf("Error handling message (attempt %d, retry in %s): %v", attempt, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
