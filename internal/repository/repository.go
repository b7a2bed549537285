package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_tickets/internal/domain"
)

var (
	ErrItemNotFound = errors.New("cart item not found")
	ErrInvalidID    = errors.New("invalid cart item id")
	// ErrTransient wraps storage failures that outlived the retry budget.
	ErrTransient = errors.New("cart storage temporarily unavailable")
)

// CartRepository stores cart lines, one document per (user, event, ticket type).
type CartRepository interface {
	AddToCart(ctx context.Context, line domain.CartLine) (*domain.CartLine, error)
	GetCart(ctx context.Context, userEmail string) ([]domain.CartLine, error)
	GetCartCount(ctx context.Context, userEmail string) (int, error)
	// UpdateCartItem deletes the line when quantity <= 0 and then returns (nil, nil).
	UpdateCartItem(ctx context.Context, userEmail, lineID string, quantity int) (*domain.CartLine, error)
	RemoveFromCart(ctx context.Context, userEmail, lineID string) error
	ClearCart(ctx context.Context, userEmail string) (int64, error)
	RemoveLines(ctx context.Context, userEmail string, keys []domain.LineKey) (int64, error)
}
