package consumer

import (
	"context"

	"github.com/fjod/go_tickets/internal/domain"
	"go.uber.org/zap"
)

const NotifierGroup = "booking-notifier"

// Dispatcher delivers a booking confirmation to the purchaser.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *domain.BookingConfirmedEvent) error
}

type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event *domain.BookingConfirmedEvent) error {
	events := make([]string, 0, len(event.Bookings))
	for _, b := range event.Bookings {
		events = append(events, b.EventTitle)
	}
	d.log.Info("booking confirmation",
		zap.String("to", event.UserEmail),
		zap.String("name", event.UserName),
		zap.String("payment_intent_id", event.PaymentIntentID),
		zap.Strings("events", events))
	return nil
}

// Notifier is fire-and-forget: a failed dispatch is logged and dropped.
type Notifier struct {
	dispatcher Dispatcher
	log        *zap.Logger
}

func NewNotifier(d Dispatcher, log *zap.Logger) *Notifier {
	return &Notifier{dispatcher: d, log: log}
}

func (n *Notifier) Handle(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	if err := n.dispatcher.Dispatch(ctx, event); err != nil {
		n.log.Warn("booking confirmation not delivered",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.String("to", event.UserEmail),
			zap.Error(err))
	}
	return nil
}
