package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// KafkaEmitter publishes audit events to a Kafka topic, keyed by request id
// so replays of one movement land in one partition.
type KafkaEmitter struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaEmitter(brokers []string, topic string, log *zap.Logger) *KafkaEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

// Emit publishes asynchronously. The movement result is already terminal;
// a failed publish is logged and dropped.
func (e *KafkaEmitter) Emit(_ context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		e.log.Error("audit event marshal failed", zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		msg := kafka.Message{
			Key:   []byte(event.RequestID),
			Value: data,
		}
		if err := e.writer.WriteMessages(ctx, msg); err != nil {
			e.log.Warn("audit event publish failed",
				zap.String("request_id", event.RequestID),
				zap.Error(err))
		}
	}()
}

func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
