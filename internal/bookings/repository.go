package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
)

var (
	ErrPendingPaymentNotFound = errors.New("pending payment not found")
	ErrDuplicateBooking       = errors.New("booking for this payment intent and event already exists")
)

type OutboxEvent struct {
	ID          int64
	AggregateID string // payment intent id
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type Store interface {
	CreatePendingPayment(ctx context.Context, p *domain.PendingPayment) error
	// SaveBookings inserts the bookings that do not exist yet, marks the
	// pending payment booked and, when anything was inserted, appends a
	// booking.confirmed outbox event. It returns every booking of the intent.
	SaveBookings(ctx context.Context, paymentIntentID string, bookings []domain.Booking) ([]domain.Booking, error)
	ListBookingsByIntent(ctx context.Context, paymentIntentID string) ([]domain.Booking, error)
	ListBookingsByUser(ctx context.Context, userEmail string) ([]domain.Booking, error)
	GetPendingPayment(ctx context.Context, paymentIntentID string) (*domain.PendingPayment, error)
	ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]*domain.PendingPayment, error)
	MarkPendingPayment(ctx context.Context, paymentIntentID string, status domain.PendingStatus, lastErr string) error
}

// OutboxStore is what the outbox poller needs.
type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}
