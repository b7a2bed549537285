package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_tickets/internal/bookings"
	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/payment"
	"github.com/fjod/go_tickets/internal/pricing"
	"go.uber.org/zap"
)

type SingleEventIntentRequest struct {
	Amount        float64
	EventID       string
	EventTitle    string
	TicketDetails []domain.TicketDetail
	Buyer         domain.Buyer
}

type MultiEventIntentRequest struct {
	Items  []domain.CheckoutItem
	Amount float64
	Buyer  domain.Buyer
}

type IntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type SingleEventBookingRequest struct {
	PaymentIntentID string
	EventID         string
	EventTitle      string
	TicketDetails   []domain.TicketDetail
	Buyer           domain.Buyer
	TotalAmount     float64
}

type MultiEventBookingRequest struct {
	PaymentIntentID string
	Items           []domain.CheckoutItem
	Buyer           domain.Buyer
}

type Service struct {
	processor payment.Processor
	store     bookings.Store
	currency  string
	log       *zap.Logger
	now       func() time.Time
}

func NewService(processor payment.Processor, store bookings.Store, currency string, log *zap.Logger) *Service {
	return &Service{
		processor: processor,
		store:     store,
		currency:  strings.ToLower(currency),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreatePaymentIntent(ctx context.Context, req SingleEventIntentRequest) (*IntentResult, error) {
	if strings.TrimSpace(req.EventID) == "" {
		return nil, domain.Invalid("eventId", "is required")
	}
	items := itemsFromTickets(req.EventID, req.EventTitle, req.TicketDetails)
	return s.createIntent(ctx, items, req.Amount, req.Buyer)
}

func (s *Service) CreateMultiEventPaymentIntent(ctx context.Context, req MultiEventIntentRequest) (*IntentResult, error) {
	return s.createIntent(ctx, req.Items, req.Amount, req.Buyer)
}

func (s *Service) createIntent(ctx context.Context, items []domain.CheckoutItem, amount float64, buyer domain.Buyer) (*IntentResult, error) {
	buyer, err := validateBuyer(buyer)
	if err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	total := pricing.ItemsTotal(items)
	if !pricing.SameAmount(total, amount) {
		return nil, fmt.Errorf("%w: declared %.2f, items sum to %.2f", ErrAmountMismatch, amount, total)
	}
	if pricing.ToMinorUnits(total) <= 0 {
		return nil, domain.Invalid("amount", "must be greater than zero")
	}

	intent, err := s.processor.CreateIntent(ctx, payment.IntentParams{
		Amount:       pricing.ToMinorUnits(total),
		Currency:     s.currency,
		ReceiptEmail: buyer.Email,
		Description:  describe(items),
		Metadata:     payment.BuildMetadata(items, buyer.Email),
	})
	if err != nil {
		s.log.Error("create payment intent failed", zap.String("user", buyer.Email), zap.Error(err))
		return nil, err
	}

	// The marker must exist before the client can pay, or a lost booking call
	// would leave a charge nobody reconciles.
	err = s.store.CreatePendingPayment(ctx, &domain.PendingPayment{
		PaymentIntentID: intent.ID,
		UserEmail:       buyer.Email,
		UserName:        buyer.Name,
		Items:           items,
		Amount:          total,
		Currency:        s.currency,
	})
	if err != nil {
		s.log.Error("persist pending payment failed",
			zap.String("payment_intent_id", intent.ID), zap.Error(err))
		return nil, fmt.Errorf("record pending payment: %w", err)
	}

	s.log.Info("payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.String("user", buyer.Email),
		zap.Int64("amount", intent.Amount),
		zap.Int("items", len(items)))

	return &IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

func (s *Service) SaveBooking(ctx context.Context, req SingleEventBookingRequest) ([]domain.Booking, error) {
	if strings.TrimSpace(req.EventID) == "" {
		return nil, domain.Invalid("eventId", "is required")
	}
	items := itemsFromTickets(req.EventID, req.EventTitle, req.TicketDetails)
	if len(items) > 0 && !pricing.SameAmount(pricing.ItemsTotal(items), req.TotalAmount) {
		return nil, fmt.Errorf("%w: declared %.2f, items sum to %.2f", ErrAmountMismatch, req.TotalAmount, pricing.ItemsTotal(items))
	}
	return s.saveBookings(ctx, req.PaymentIntentID, items, req.Buyer)
}

func (s *Service) SaveMultiEventBooking(ctx context.Context, req MultiEventBookingRequest) ([]domain.Booking, error) {
	return s.saveBookings(ctx, req.PaymentIntentID, req.Items, req.Buyer)
}

func (s *Service) saveBookings(ctx context.Context, intentID string, items []domain.CheckoutItem, buyer domain.Buyer) ([]domain.Booking, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, domain.Invalid("paymentIntentId", "is required")
	}
	buyer, err := validateBuyer(buyer)
	if err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	intent, err := s.processor.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := verifyIntent(intent, buyer); err != nil {
		s.refuse(intentID, intent, err)
		return nil, err
	}

	// One payment books once; a repeated save gets the original bookings back.
	existing, err := s.store.ListBookingsByIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	if len(existing) > 0 {
		s.log.Info("payment intent already booked",
			zap.String("payment_intent_id", intentID),
			zap.Int("bookings", len(existing)))
		return existing, nil
	}

	marker, err := s.store.GetPendingPayment(ctx, intentID)
	if errors.Is(err, bookings.ErrPendingPaymentNotFound) {
		err = domain.Invalid("paymentIntentId", "has no recorded order")
		s.refuse(intentID, intent, err)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load pending payment: %w", err)
	}
	if err := verifyItems(intent, marker.Items, items); err != nil {
		s.refuse(intentID, intent, err)
		return nil, err
	}

	return s.book(ctx, intentID, items, buyer)
}

func (s *Service) refuse(intentID string, intent *payment.Intent, err error) {
	s.log.Warn("refusing to book payment intent",
		zap.String("payment_intent_id", intentID),
		zap.String("status", string(intent.Status)),
		zap.Error(err))
}

func (s *Service) book(ctx context.Context, intentID string, items []domain.CheckoutItem, buyer domain.Buyer) ([]domain.Booking, error) {
	fanOut := GroupByEvent(items, buyer, intentID, s.currency, s.now())
	stored, err := s.store.SaveBookings(ctx, intentID, fanOut)
	if err != nil {
		s.log.Error("save bookings failed", zap.String("payment_intent_id", intentID), zap.Error(err))
		return nil, fmt.Errorf("save bookings: %w", err)
	}

	s.log.Info("bookings saved",
		zap.String("payment_intent_id", intentID),
		zap.String("user", buyer.Email),
		zap.Int("bookings", len(stored)))
	return stored, nil
}

// ListBookings returns the purchaser's bookings, newest first.
func (s *Service) ListBookings(ctx context.Context, userEmail string) ([]domain.Booking, error) {
	email := strings.ToLower(strings.TrimSpace(userEmail))
	if email == "" {
		return nil, domain.Invalid("userEmail", "is required")
	}
	return s.store.ListBookingsByUser(ctx, email)
}

func verifyIntent(intent *payment.Intent, buyer domain.Buyer) error {
	if intent.Status != payment.StatusSucceeded {
		return fmt.Errorf("%w: intent status is %s", ErrPaymentNotSucceeded, intent.Status)
	}
	if owner := intent.Metadata["user_email"]; owner != "" && !strings.EqualFold(owner, buyer.Email) {
		return domain.Invalid("paymentIntentId", "does not belong to this user")
	}
	return nil
}

// verifyItems checks the submitted items against what was paid for: the
// amount charged and the order recorded when the intent was created.
func verifyItems(intent *payment.Intent, ordered, items []domain.CheckoutItem) error {
	if paid := pricing.FromMinorUnits(intent.Amount); !pricing.SameAmount(paid, pricing.ItemsTotal(items)) {
		return fmt.Errorf("%w: paid %.2f, items sum to %.2f", ErrAmountMismatch, paid, pricing.ItemsTotal(items))
	}
	if !sameItems(ordered, items) {
		return fmt.Errorf("%w: items differ from the paid order", ErrAmountMismatch)
	}
	return nil
}

type itemTally struct {
	quantity int
	total    float64
}

// sameItems compares two item lists per (event, ticket), ignoring order and titles.
func sameItems(a, b []domain.CheckoutItem) bool {
	tally := func(items []domain.CheckoutItem) map[domain.LineKey]itemTally {
		out := make(map[domain.LineKey]itemTally, len(items))
		for _, it := range items {
			k := domain.LineKey{EventID: it.EventID, TicketName: it.TicketName}
			t := out[k]
			t.quantity += it.Quantity
			t.total = pricing.Sum(t.total, pricing.LineTotal(it.Price, it.Quantity))
			out[k] = t
		}
		return out
	}
	ta, tb := tally(a), tally(b)
	if len(ta) != len(tb) {
		return false
	}
	for k, x := range ta {
		y, ok := tb[k]
		if !ok || x.quantity != y.quantity || !pricing.SameAmount(x.total, y.total) {
			return false
		}
	}
	return true
}

func validateBuyer(b domain.Buyer) (domain.Buyer, error) {
	b.Email = strings.ToLower(strings.TrimSpace(b.Email))
	b.Name = strings.TrimSpace(b.Name)
	if b.Email == "" {
		return b, domain.Invalid("userEmail", "is required")
	}
	return b, nil
}

func validateItems(items []domain.CheckoutItem) error {
	if len(items) == 0 {
		return domain.Invalid("items", "must not be empty")
	}
	for i, it := range items {
		switch {
		case strings.TrimSpace(it.EventID) == "":
			return domain.Invalid(fmt.Sprintf("items[%d].eventId", i), "is required")
		case strings.TrimSpace(it.TicketName) == "":
			return domain.Invalid(fmt.Sprintf("items[%d].ticketName", i), "is required")
		case it.Quantity < 1:
			return domain.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		case it.Price < 0:
			return domain.Invalid(fmt.Sprintf("items[%d].price", i), "must not be negative")
		}
	}
	return nil
}

func describe(items []domain.CheckoutItem) string {
	seen := make(map[string]bool)
	var titles []string
	for _, it := range items {
		if seen[it.EventID] {
			continue
		}
		seen[it.EventID] = true
		title := it.EventTitle
		if title == "" {
			title = it.EventID
		}
		titles = append(titles, title)
	}
	return "Tickets: " + strings.Join(titles, ", ")
}
