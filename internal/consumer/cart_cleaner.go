package consumer

import (
	"context"
	"fmt"

	"github.com/fjod/go_tickets/internal/domain"
	"go.uber.org/zap"
)

const CartCleanerGroup = "cart-cleaner"

type LineRemover interface {
	RemoveLines(ctx context.Context, userEmail string, keys []domain.LineKey) (int64, error)
}

// CartCleaner removes purchased lines from the buyer's cart. Lines added after
// checkout for other tickets stay. Replays remove nothing.
type CartCleaner struct {
	carts LineRemover
	log   *zap.Logger
}

func NewCartCleaner(carts LineRemover, log *zap.Logger) *CartCleaner {
	return &CartCleaner{carts: carts, log: log}
}

func (c *CartCleaner) Handle(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	if event.UserEmail == "" {
		return fmt.Errorf("booking event %s has no user email", event.PaymentIntentID)
	}

	var keys []domain.LineKey
	for _, b := range event.Bookings {
		for _, t := range b.Tickets {
			keys = append(keys, domain.LineKey{EventID: b.EventID, TicketName: t.Name})
		}
	}
	if len(keys) == 0 {
		return nil
	}

	removed, err := c.carts.RemoveLines(ctx, event.UserEmail, keys)
	if err != nil {
		return fmt.Errorf("remove booked lines: %w", err)
	}
	if removed > 0 {
		c.log.Info("removed booked lines from cart",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.String("user", event.UserEmail),
			zap.Int64("removed", removed))
	}
	return nil
}
