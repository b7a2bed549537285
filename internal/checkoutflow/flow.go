package checkoutflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_tickets/internal/cartclient"
	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/payment"
	"github.com/fjod/go_tickets/internal/pricing"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrSubmitInProgress = errors.New("checkout already in progress")
	ErrPaymentFailed    = errors.New("payment failed")
)

const (
	msgEmptyCart       = "Your cart is empty"
	msgIntentFailed    = "Could not start the payment. Please try again."
	msgPaymentFailed   = "Payment failed. Please try again."
	msgNotCompleted    = "Payment was not completed."
	msgBooked          = "Payment successful! Your tickets are booked."
	msgBookingDeferred = "Payment successful! Your booking confirmation will follow shortly."
)

// CheckoutAPI is the server half of a checkout.
type CheckoutAPI interface {
	CreatePaymentIntent(ctx context.Context, in cartclient.EventIntentInput) (*cartclient.PaymentIntent, error)
	CreateMultiEventPaymentIntent(ctx context.Context, in cartclient.MultiEventIntentInput) (*cartclient.PaymentIntent, error)
	SaveBooking(ctx context.Context, in cartclient.EventBookingInput) ([]domain.Booking, error)
	SaveMultiEventBooking(ctx context.Context, in cartclient.MultiEventBookingInput) ([]domain.Booking, error)
}

type CartClearer interface {
	ClearCart(ctx context.Context) error
}

// EventSelection is the ticket picker of a single event page.
type EventSelection struct {
	EventID    string
	EventTitle string
	Tickets    []domain.TicketDetail
}

type Result struct {
	State           domain.CheckoutState
	PaymentIntentID string
	Bookings        []domain.Booking
	// BookingSaved is false when the charge went through but storing the
	// bookings did not; the server reconciles those from the intent.
	BookingSaved bool
}

// Flow runs one checkout at a time: intent, card confirmation, booking.
type Flow struct {
	api       CheckoutAPI
	confirmer payment.Confirmer
	cart      CartClearer
	toaster   cartclient.Toaster
	log       *zap.Logger

	mu    sync.Mutex
	state domain.CheckoutState
	busy  bool
}

// NewFlow builds a Flow. cart may be nil when nothing should be cleared.
func NewFlow(api CheckoutAPI, confirmer payment.Confirmer, cart CartClearer, toaster cartclient.Toaster, log *zap.Logger) *Flow {
	return &Flow{
		api:       api,
		confirmer: confirmer,
		cart:      cart,
		toaster:   toaster,
		log:       log,
		state:     domain.CheckoutIdle,
	}
}

func (f *Flow) State() domain.CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Busy reports whether a submit is outstanding; the pay button is disabled while it is.
func (f *Flow) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

type attempt struct {
	createIntent func(ctx context.Context) (*cartclient.PaymentIntent, error)
	saveBookings func(ctx context.Context, intentID string) ([]domain.Booking, error)
	clearCart    bool
}

// CheckoutCart pays for every line of the cart and books one entry per event.
func (f *Flow) CheckoutCart(ctx context.Context, items []domain.CheckoutItem, buyer domain.Buyer, card payment.Card) (*Result, error) {
	items = nonEmptyItems(items)
	if len(items) == 0 {
		f.toaster.Show(cartclient.ToastError, msgEmptyCart)
		return nil, ErrEmptyCart
	}
	amount := pricing.ItemsTotal(items)

	return f.run(ctx, card, attempt{
		createIntent: func(ctx context.Context) (*cartclient.PaymentIntent, error) {
			return f.api.CreateMultiEventPaymentIntent(ctx, cartclient.MultiEventIntentInput{
				Items:     items,
				Amount:    amount,
				UserEmail: buyer.Email,
				UserName:  buyer.Name,
			})
		},
		saveBookings: func(ctx context.Context, intentID string) ([]domain.Booking, error) {
			return f.api.SaveMultiEventBooking(ctx, cartclient.MultiEventBookingInput{
				PaymentIntentID: intentID,
				Items:           items,
				UserEmail:       buyer.Email,
				UserName:        buyer.Name,
			})
		},
		clearCart: true,
	})
}

// CheckoutEvent buys tickets straight from an event page; the cart is not touched.
func (f *Flow) CheckoutEvent(ctx context.Context, sel EventSelection, buyer domain.Buyer, card payment.Card) (*Result, error) {
	tickets := make([]domain.TicketDetail, 0, len(sel.Tickets))
	for _, t := range sel.Tickets {
		if t.Quantity > 0 {
			tickets = append(tickets, t)
		}
	}
	if len(tickets) == 0 {
		f.toaster.Show(cartclient.ToastError, msgEmptyCart)
		return nil, ErrEmptyCart
	}

	var amount float64
	for _, t := range tickets {
		amount = pricing.Sum(amount, pricing.LineTotal(t.Price, t.Quantity))
	}

	return f.run(ctx, card, attempt{
		createIntent: func(ctx context.Context) (*cartclient.PaymentIntent, error) {
			return f.api.CreatePaymentIntent(ctx, cartclient.EventIntentInput{
				Amount:        amount,
				EventID:       sel.EventID,
				EventTitle:    sel.EventTitle,
				TicketDetails: tickets,
				UserEmail:     buyer.Email,
				UserName:      buyer.Name,
			})
		},
		saveBookings: func(ctx context.Context, intentID string) ([]domain.Booking, error) {
			return f.api.SaveBooking(ctx, cartclient.EventBookingInput{
				PaymentIntentID: intentID,
				EventID:         sel.EventID,
				EventTitle:      sel.EventTitle,
				TicketDetails:   tickets,
				UserEmail:       buyer.Email,
				UserName:        buyer.Name,
				TotalAmount:     amount,
			})
		},
	})
}

func (f *Flow) run(ctx context.Context, card payment.Card, a attempt) (*Result, error) {
	if err := f.begin(); err != nil {
		return nil, err
	}
	defer f.end()

	intent, err := a.createIntent(ctx)
	if err != nil {
		f.fail(userMessage(err, msgIntentFailed))
		f.log.Warn("failed to create payment intent", zap.Error(err))
		return &Result{State: domain.CheckoutFailed}, fmt.Errorf("create payment intent: %w", err)
	}
	f.moveTo(domain.CheckoutConfirming)

	confirmed, err := f.confirmer.ConfirmCardPayment(ctx, intent.ClientSecret, card)
	if err != nil {
		f.fail(userMessage(err, msgPaymentFailed))
		f.log.Info("payment not confirmed",
			zap.String("payment_intent_id", intent.PaymentIntentID),
			zap.Error(err))
		return &Result{State: domain.CheckoutFailed, PaymentIntentID: intent.PaymentIntentID}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if confirmed.Status != payment.StatusSucceeded {
		msg := confirmed.LastError
		if msg == "" {
			msg = msgNotCompleted
		}
		f.fail(msg)
		return &Result{State: domain.CheckoutFailed, PaymentIntentID: intent.PaymentIntentID},
			fmt.Errorf("%w: intent status is %s", ErrPaymentFailed, confirmed.Status)
	}
	f.moveTo(domain.CheckoutSucceeded)

	res := &Result{State: domain.CheckoutSucceeded, PaymentIntentID: intent.PaymentIntentID}

	// The customer has been charged from here on; nothing below may report failure.
	saved, err := a.saveBookings(ctx, intent.PaymentIntentID)
	if err != nil {
		f.log.Error("payment succeeded but booking save failed",
			zap.String("payment_intent_id", intent.PaymentIntentID),
			zap.Error(err))
		f.toaster.Show(cartclient.ToastSuccess, msgBookingDeferred)
		return res, nil
	}
	res.Bookings = saved
	res.BookingSaved = true

	if a.clearCart && f.cart != nil {
		if err := f.cart.ClearCart(ctx); err != nil {
			f.log.Warn("failed to clear cart after checkout",
				zap.String("payment_intent_id", intent.PaymentIntentID),
				zap.Error(err))
		}
	}
	f.toaster.Show(cartclient.ToastSuccess, msgBooked)
	return res, nil
}

func (f *Flow) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrSubmitInProgress
	}
	if f.state.IsTerminal() {
		f.state = domain.CheckoutIdle
	}
	if !f.state.CanTransitionTo(domain.CheckoutIntentRequested) {
		return fmt.Errorf("checkout cannot start from state %s", f.state)
	}
	f.state = domain.CheckoutIntentRequested
	f.busy = true
	return nil
}

func (f *Flow) end() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}

func (f *Flow) moveTo(next domain.CheckoutState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.CanTransitionTo(next) {
		f.log.Error("invalid checkout transition",
			zap.String("from", f.state.String()),
			zap.String("to", next.String()))
	}
	f.state = next
}

func (f *Flow) fail(message string) {
	f.moveTo(domain.CheckoutFailed)
	f.toaster.Show(cartclient.ToastError, message)
}

// userMessage prefers what the processor or server said; declines are shown verbatim.
func userMessage(err error, fallback string) string {
	var declined *payment.DeclineError
	if errors.As(err, &declined) && declined.Message != "" {
		return declined.Message
	}
	var apiErr *cartclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func nonEmptyItems(items []domain.CheckoutItem) []domain.CheckoutItem {
	out := make([]domain.CheckoutItem, 0, len(items))
	for _, it := range items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}
