package events

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the forwarder uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder publishes events as JSON keyed by task id, so one task's
// events stay on one partition in order.
type KafkaForwarder struct {
	w   MessageWriter
	log *zap.Logger
}

// NewKafkaForwarder creates an async writer for topic on brokers.
func NewKafkaForwarder(brokers []string, topic string, logger *zap.Logger) (*KafkaForwarder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka forwarder: no brokers")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka forwarder: no topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           200 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return newKafkaForwarder(w, logger), nil
}

func newKafkaForwarder(w MessageWriter, logger *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{w: w, log: logger}
}

// Forward encodes and queues one event.
func (k *KafkaForwarder) Forward(ctx context.Context, evt domain.Event) error {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.TaskID),
		Value: payload,
		Time:  time.UnixMilli(evt.Ts),
	})
}

// Close flushes and closes the writer.
func (k *KafkaForwarder) Close() error {
	return k.w.Close()
}
