package cartclient

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"golang.org/x/sync/singleflight"
)

const DefaultThrottleWindow = 2 * time.Second

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

// CartFetcher is the read half of the cart API.
type CartFetcher interface {
	GetCart(ctx context.Context, userEmail string) (*domain.Cart, error)
	GetCartCount(ctx context.Context, userEmail string) (int, error)
}

// Snapshot is the client-side mirror of a user's cart.
type Snapshot struct {
	Items     []domain.CartLine
	Count     int
	FetchedAt time.Time
}

func (s Snapshot) clone() Snapshot {
	s.Items = append([]domain.CartLine(nil), s.Items...)
	return s
}

type countEntry struct {
	count     int
	fetchedAt time.Time
}

// SharedCache throttles and de-duplicates cart reads for every Store of one
// client session. A snapshot younger than the window is served without a
// network call; concurrent misses share one request.
type SharedCache struct {
	fetcher CartFetcher
	clock   Clock
	window  time.Duration
	sfg     singleflight.Group

	mu     sync.Mutex
	gen    map[string]uint64
	carts  map[string]Snapshot
	counts map[string]countEntry
}

func NewSharedCache(fetcher CartFetcher, clock Clock, window time.Duration) *SharedCache {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &SharedCache{
		fetcher: fetcher,
		clock:   clock,
		window:  window,
		gen:     make(map[string]uint64),
		carts:   make(map[string]Snapshot),
		counts:  make(map[string]countEntry),
	}
}

func (c *SharedCache) Cart(ctx context.Context, userEmail string) (Snapshot, error) {
	c.mu.Lock()
	if snap, ok := c.carts[userEmail]; ok && c.fresh(snap.FetchedAt) {
		c.mu.Unlock()
		return snap.clone(), nil
	}
	gen := c.gen[userEmail]
	c.mu.Unlock()

	res, err := c.share(ctx, "cart:"+userEmail, func(ctx context.Context) (interface{}, error) {
		cart, err := c.fetcher.GetCart(ctx, userEmail)
		if err != nil {
			return nil, err
		}
		snap := Snapshot{Items: cart.Items, Count: cart.Count, FetchedAt: c.clock.Now()}

		c.mu.Lock()
		if c.gen[userEmail] == gen {
			c.carts[userEmail] = snap
			c.counts[userEmail] = countEntry{count: snap.Count, fetchedAt: snap.FetchedAt}
		}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return res.(Snapshot).clone(), nil
}

func (c *SharedCache) Count(ctx context.Context, userEmail string) (int, error) {
	c.mu.Lock()
	if e, ok := c.counts[userEmail]; ok && c.fresh(e.fetchedAt) {
		c.mu.Unlock()
		return e.count, nil
	}
	gen := c.gen[userEmail]
	c.mu.Unlock()

	res, err := c.share(ctx, "count:"+userEmail, func(ctx context.Context) (interface{}, error) {
		count, err := c.fetcher.GetCartCount(ctx, userEmail)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen[userEmail] == gen {
			c.counts[userEmail] = countEntry{count: count, fetchedAt: c.clock.Now()}
		}
		c.mu.Unlock()
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// Invalidate drops both entries. A fetch already in flight still answers its
// callers but no longer fills the cache, and later callers start a new one.
func (c *SharedCache) Invalidate(userEmail string) {
	c.mu.Lock()
	c.gen[userEmail]++
	delete(c.carts, userEmail)
	delete(c.counts, userEmail)
	c.mu.Unlock()

	c.sfg.Forget("cart:" + userEmail)
	c.sfg.Forget("count:" + userEmail)
}

func (c *SharedCache) fresh(fetchedAt time.Time) bool {
	return c.clock.Now().Sub(fetchedAt) < c.window
}

// share runs fn once per key. The request is detached from the first caller's
// cancellation so the others waiting on it are not failed by it.
func (c *SharedCache) share(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
