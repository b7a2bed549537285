package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/service"
	"go.uber.org/zap"
)

type CartService interface {
	GetCart(ctx context.Context, userEmail string) (*domain.Cart, error)
	GetCartCount(ctx context.Context, userEmail string) (int, error)
	AddToCart(ctx context.Context, req service.AddItemRequest) (*domain.CartLine, error)
	UpdateCartItem(ctx context.Context, userEmail, itemID string, quantity int) (*domain.CartLine, error)
	RemoveFromCart(ctx context.Context, userEmail, itemID string) error
	ClearCart(ctx context.Context, userEmail string) error
}

type CartHandler struct {
	carts CartService
	log   *zap.Logger
}

func NewCartHandler(carts CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, log: log}
}

type AddItemRequestDTO struct {
	UserEmail  string            `json:"userEmail"`
	EventID    string            `json:"eventId"`
	EventTitle string            `json:"eventTitle"`
	TicketType domain.TicketType `json:"ticketType"`
	Quantity   int               `json:"quantity"`
}

type UpdateItemRequestDTO struct {
	UserEmail string `json:"userEmail"`
	ItemID    string `json:"itemId"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequestDTO struct {
	UserEmail string `json:"userEmail"`
	ItemID    string `json:"itemId"`
}

type CartResponse struct {
	Items []domain.CartLine `json:"items"`
	Count int               `json:"count"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ItemResponse struct {
	Item    *domain.CartLine `json:"item,omitempty"`
	Removed bool             `json:"removed,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	user, ok := authorizeUser(w, r, pathEmail(r))
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), user)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	items := cart.Items
	if items == nil {
		items = []domain.CartLine{}
	}
	respondJSON(w, http.StatusOK, CartResponse{Items: items, Count: cart.Count})
}

func (h *CartHandler) GetCartCount(w http.ResponseWriter, r *http.Request) {
	user, ok := authorizeUser(w, r, pathEmail(r))
	if !ok {
		return
	}

	count, err := h.carts.GetCartCount(r.Context(), user)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	line, err := h.carts.AddToCart(r.Context(), service.AddItemRequest{
		UserEmail:  user,
		EventID:    req.EventID,
		EventTitle: req.EventTitle,
		TicketType: req.TicketType,
		Quantity:   req.Quantity,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, ItemResponse{Item: line})
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	line, err := h.carts.UpdateCartItem(r.Context(), user, req.ItemID, req.Quantity)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	if line == nil {
		respondJSON(w, http.StatusOK, ItemResponse{Removed: true})
		return
	}
	respondJSON(w, http.StatusOK, ItemResponse{Item: line})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req RemoveItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := authorizeUser(w, r, req.UserEmail)
	if !ok {
		return
	}

	if err := h.carts.RemoveFromCart(r.Context(), user, req.ItemID); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	user, ok := authorizeUser(w, r, pathEmail(r))
	if !ok {
		return
	}

	if err := h.carts.ClearCart(r.Context(), user); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
