package domain

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	// BookingCancelled is reserved for refunds; nothing produces it yet.
	BookingCancelled BookingStatus = "cancelled"
)

type BookingTicket struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}

// Booking records one confirmed purchase for one event. All bookings of a
// checkout share PaymentIntentID.
type Booking struct {
	ID              string          `json:"id"`
	PaymentIntentID string          `json:"paymentIntentId"`
	EventID         string          `json:"eventId"`
	EventTitle      string          `json:"eventTitle"`
	Tickets         []BookingTicket `json:"tickets"`
	UserEmail       string          `json:"userEmail"`
	UserName        string          `json:"userName"`
	TotalAmount     float64         `json:"totalAmount"`
	Currency        string          `json:"currency"`
	Status          BookingStatus   `json:"status"`
	BookedAt        time.Time       `json:"bookedAt"`
}

type PendingStatus string

const (
	PendingAwaitingBooking PendingStatus = "pending"
	PendingBooked          PendingStatus = "booked"
	PendingAbandoned       PendingStatus = "abandoned"
)

// PendingPayment marks a payment intent whose bookings may not exist yet.
type PendingPayment struct {
	PaymentIntentID string
	UserEmail       string
	UserName        string
	Items           []CheckoutItem
	Amount          float64
	Currency        string
	Status          PendingStatus
	Attempts        int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookingConfirmedEvent is the outbox payload published after bookings are stored.
type BookingConfirmedEvent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	UserEmail       string    `json:"user_email"`
	UserName        string    `json:"user_name"`
	Bookings        []Booking `json:"bookings"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

const EventBookingConfirmed = "booking.confirmed"
