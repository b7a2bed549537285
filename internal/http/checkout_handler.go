package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_tickets/internal/checkout"
	"github.com/fjod/go_tickets/internal/domain"
	"go.uber.org/zap"
)

type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, req checkout.SingleEventIntentRequest) (*checkout.IntentResult, error)
	CreateMultiEventPaymentIntent(ctx context.Context, req checkout.MultiEventIntentRequest) (*checkout.IntentResult, error)
	SaveBooking(ctx context.Context, req checkout.SingleEventBookingRequest) ([]domain.Booking, error)
	SaveMultiEventBooking(ctx context.Context, req checkout.MultiEventBookingRequest) ([]domain.Booking, error)
	ListBookings(ctx context.Context, userEmail string) ([]domain.Booking, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	log      *zap.Logger
}

func NewCheckoutHandler(svc CheckoutService, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc, log: log}
}

type PaymentIntentRequestDTO struct {
	Amount        float64               `json:"amount"`
	EventID       string                `json:"eventId"`
	EventTitle    string                `json:"eventTitle"`
	TicketDetails []domain.TicketDetail `json:"ticketDetails"`
	UserEmail     string                `json:"userEmail"`
	UserName      string                `json:"userName"`
}

type MultiEventPaymentIntentRequestDTO struct {
	Items     []domain.CheckoutItem `json:"items"`
	Amount    float64               `json:"amount"`
	UserEmail string                `json:"userEmail"`
	UserName  string                `json:"userName"`
}

type SaveBookingRequestDTO struct {
	PaymentIntentID string                `json:"paymentIntentId"`
	EventID         string                `json:"eventId"`
	EventTitle      string                `json:"eventTitle"`
	TicketDetails   []domain.TicketDetail `json:"ticketDetails"`
	UserEmail       string                `json:"userEmail"`
	UserName        string                `json:"userName"`
	TotalAmount     float64               `json:"totalAmount"`
}

type SaveMultiEventBookingRequestDTO struct {
	PaymentIntentID string                `json:"paymentIntentId"`
	Items           []domain.CheckoutItem `json:"items"`
	UserEmail       string                `json:"userEmail"`
	UserName        string                `json:"userName"`
}

type BookingsResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}

func (h *CheckoutHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req PaymentIntentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	res, err := h.checkout.CreatePaymentIntent(r.Context(), checkout.SingleEventIntentRequest{
		Amount:        req.Amount,
		EventID:       req.EventID,
		EventTitle:    req.EventTitle,
		TicketDetails: req.TicketDetails,
		Buyer:         domain.Buyer{Email: user, Name: req.UserName},
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *CheckoutHandler) CreateMultiEventPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req MultiEventPaymentIntentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	res, err := h.checkout.CreateMultiEventPaymentIntent(r.Context(), checkout.MultiEventIntentRequest{
		Items:  req.Items,
		Amount: req.Amount,
		Buyer:  domain.Buyer{Email: user, Name: req.UserName},
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *CheckoutHandler) SaveBooking(w http.ResponseWriter, r *http.Request) {
	var req SaveBookingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	saved, err := h.checkout.SaveBooking(r.Context(), checkout.SingleEventBookingRequest{
		PaymentIntentID: req.PaymentIntentID,
		EventID:         req.EventID,
		EventTitle:      req.EventTitle,
		TicketDetails:   req.TicketDetails,
		Buyer:           domain.Buyer{Email: user, Name: req.UserName},
		TotalAmount:     req.TotalAmount,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, BookingsResponse{Bookings: saved})
}

func (h *CheckoutHandler) SaveMultiEventBooking(w http.ResponseWriter, r *http.Request) {
	var req SaveMultiEventBookingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	saved, err := h.checkout.SaveMultiEventBooking(r.Context(), checkout.MultiEventBookingRequest{
		PaymentIntentID: req.PaymentIntentID,
		Items:           req.Items,
		Buyer:           domain.Buyer{Email: user, Name: req.UserName},
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, BookingsResponse{Bookings: saved})
}

func (h *CheckoutHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user, ok := authorizeUser(w, r, pathEmail(r))
	if !ok {
		return
	}

	list, err := h.checkout.ListBookings(r.Context(), user)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []domain.Booking{}
	}
	respondJSON(w, http.StatusOK, BookingsResponse{Bookings: list})
}
