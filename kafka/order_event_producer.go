package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/longle289/TrustAustralia/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventProducer publishes order lifecycle events keyed by order id, so
// every event for one order lands on the same partition.
type OrderEventProducer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewOrderEventProducer(brokers []string, topic string, logger *zap.Logger) *OrderEventProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("Kafka order event producer initialized", zap.String("topic", topic), zap.Strings("brokers", brokers))
	return newOrderEventProducer(w, topic, logger)
}

func newOrderEventProducer(w messageWriter, topic string, logger *zap.Logger) *OrderEventProducer {
	return &OrderEventProducer{writer: w, topic: topic, logger: logger}
}

func (p *OrderEventProducer) Publish(ctx context.Context, event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to send order event",
			zap.String("topic", p.topic),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("Sent order event", zap.String("type", event.Type), zap.String("order_id", event.OrderID))
	return nil
}

func (p *OrderEventProducer) Close() error {
	return p.writer.Close()
}
