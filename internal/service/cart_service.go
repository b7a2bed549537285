package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/go_tickets/internal/cache"
	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type AddItemRequest struct {
	UserEmail  string
	EventID    string
	EventTitle string
	TicketType domain.TicketType
	Quantity   int
}

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
	log   *zap.Logger
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *zap.Logger) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (s *CartService) GetCart(ctx context.Context, userEmail string) (*domain.Cart, error) {
	userEmail, err := requireEmail(userEmail)
	if err != nil {
		return nil, err
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userEmail, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userEmail)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", zap.String("user", userEmail), zap.Error(err))
		}

		// Captured before the read so a concurrent mutation makes this fill stale.
		gen, genErr := s.cache.Generation(ctx, userEmail)

		lines, err := s.repo.GetCart(ctx, userEmail)
		if err != nil {
			return nil, err
		}
		cart = &domain.Cart{
			UserEmail: userEmail,
			Items:     lines,
			Count:     domain.CountItems(lines),
		}

		if genErr == nil {
			go s.fillCache(userEmail, gen, cart)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *CartService) fillCache(userEmail string, gen int64, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.cache.SetIfGeneration(ctx, userEmail, gen, cart)
	switch {
	case errors.Is(err, cache.ErrStaleFill):
		s.log.Debug("cache fill skipped, cart changed", zap.String("user", userEmail))
	case err != nil:
		s.log.Warn("cache set error", zap.String("user", userEmail), zap.Error(err))
	}
}

// GetCartCount sums quantities; a cached cart answers without touching the store.
func (s *CartService) GetCartCount(ctx context.Context, userEmail string) (int, error) {
	userEmail, err := requireEmail(userEmail)
	if err != nil {
		return 0, err
	}
	if cart, err := s.cache.Get(ctx, userEmail); err == nil {
		return cart.Count, nil
	}
	return s.repo.GetCartCount(ctx, userEmail)
}

func (s *CartService) AddToCart(ctx context.Context, req AddItemRequest) (*domain.CartLine, error) {
	userEmail, err := requireEmail(req.UserEmail)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.EventID) == "" {
		return nil, domain.Invalid("eventId", "is required")
	}
	if strings.TrimSpace(req.TicketType.Name) == "" {
		return nil, domain.Invalid("ticketType.name", "is required")
	}
	if req.TicketType.Price < 0 {
		return nil, domain.Invalid("ticketType.price", "must not be negative")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return nil, domain.Invalid("quantity", "must be at least 1")
	}

	line, err := s.repo.AddToCart(ctx, domain.CartLine{
		UserEmail:  userEmail,
		EventID:    strings.TrimSpace(req.EventID),
		EventTitle: req.EventTitle,
		TicketType: req.TicketType,
		Quantity:   req.Quantity,
	})
	if err != nil {
		s.log.Error("repo add item error", zap.String("user", userEmail), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(userEmail)
	return line, nil
}

// UpdateCartItem sets the quantity; quantity <= 0 removes the line and returns nil.
func (s *CartService) UpdateCartItem(ctx context.Context, userEmail, itemID string, quantity int) (*domain.CartLine, error) {
	userEmail, err := requireEmail(userEmail)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, domain.Invalid("itemId", "is required")
	}

	line, err := s.repo.UpdateCartItem(ctx, userEmail, itemID, quantity)
	if err != nil {
		s.log.Error("repo update item quantity error", zap.String("user", userEmail), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(userEmail)
	return line, nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, userEmail, itemID string) error {
	userEmail, err := requireEmail(userEmail)
	if err != nil {
		return err
	}
	if strings.TrimSpace(itemID) == "" {
		return domain.Invalid("itemId", "is required")
	}

	if err := s.repo.RemoveFromCart(ctx, userEmail, itemID); err != nil {
		s.log.Error("repo remove item error", zap.String("user", userEmail), zap.Error(err))
		return err
	}

	s.invalidateCache(userEmail)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userEmail string) error {
	userEmail, err := requireEmail(userEmail)
	if err != nil {
		return err
	}

	if _, err := s.repo.ClearCart(ctx, userEmail); err != nil {
		s.log.Error("repo clear cart error", zap.String("user", userEmail), zap.Error(err))
		return err
	}

	s.invalidateCache(userEmail)
	return nil
}

// RemoveLines drops the booked lines after a checkout completes.
func (s *CartService) RemoveLines(ctx context.Context, userEmail string, keys []domain.LineKey) (int64, error) {
	userEmail, err := requireEmail(userEmail)
	if err != nil {
		return 0, err
	}

	removed, err := s.repo.RemoveLines(ctx, userEmail, keys)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.invalidateCache(userEmail)
	}
	return removed, nil
}

// invalidateCache also detaches any in-flight read, so reads issued after the
// write go to the store instead of joining a flight that started before it.
func (s *CartService) invalidateCache(userEmail string) {
	s.sfg.Forget(userEmail)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, userEmail); err != nil {
		s.log.Warn("cache invalidate error", zap.String("user", userEmail), zap.Error(err))
	}
}

func requireEmail(email string) (string, error) {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return "", domain.Invalid("userEmail", "is required")
	}
	return email, nil
}
