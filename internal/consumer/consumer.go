package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const Topic = "booking-outbox"

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler reacts to one confirmed checkout.
type Handler interface {
	Handle(ctx context.Context, event *domain.BookingConfirmedEvent) error
}

type Consumer struct {
	reader  messageReader
	handler Handler
	log     *zap.Logger
}

// NewConsumer subscribes groupID to the booking outbox topic.
func NewConsumer(handler Handler, groupID string, log *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, handler: handler, log: log.With(zap.String("group", groupID))}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Error("error reading message", zap.Error(err))
		return
	}

	if t := eventType(m); t != "" && t != domain.EventBookingConfirmed {
		c.log.Debug("skipping event", zap.String("event_type", t))
		return
	}

	var event domain.BookingConfirmedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Error("error parsing message", zap.ByteString("key", m.Key), zap.Error(err))
		return
	}

	if err := c.handler.Handle(ctx, &event); err != nil {
		c.log.Error("failed to handle booking event",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.Error(err))
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
