package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_tickets/internal/domain"
)

// CartCache is a read-through cache of persisted carts. Fills carry the
// generation observed before the read so that a fill racing an invalidation
// is dropped instead of caching a stale cart.
type CartCache interface {
	Get(ctx context.Context, userEmail string) (*domain.Cart, error)
	Generation(ctx context.Context, userEmail string) (int64, error)
	SetIfGeneration(ctx context.Context, userEmail string, generation int64, cart *domain.Cart) error
	Invalidate(ctx context.Context, userEmail string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrStaleFill = errors.New("cart changed while it was being cached")
)
