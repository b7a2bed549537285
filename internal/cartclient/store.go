package cartclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotAuthenticated = errors.New("not authenticated")

const (
	DefaultSettleDelay  = 300 * time.Millisecond
	signalReloadTimeout = 10 * time.Second
)

// CartAPI is the part of API a Store needs.
type CartAPI interface {
	CartFetcher
	AddItem(ctx context.Context, userEmail string, in AddItemInput) (*domain.CartLine, error)
	UpdateItem(ctx context.Context, userEmail, itemID string, quantity int) error
	RemoveItem(ctx context.Context, userEmail, itemID string) error
	ClearCart(ctx context.Context, userEmail string) error
}

// Session reports the signed-in user, or "" when nobody is.
type Session interface {
	UserEmail() string
}

type StaticSession string

func (s StaticSession) UserEmail() string { return string(s) }

type StoreConfig struct {
	API         CartAPI
	Cache       *SharedCache
	Bus         *Bus
	Toaster     Toaster
	Session     Session
	Log         *zap.Logger
	SettleDelay time.Duration
}

// Store is one consumer's view of the cart. Stores built over the same
// SharedCache and Bus stay in step without referencing each other.
type Store struct {
	id      string
	api     CartAPI
	cache   *SharedCache
	bus     *Bus
	toaster Toaster
	session Session
	log     *zap.Logger
	settle  time.Duration

	mu        sync.Mutex
	state     cartState
	listeners map[int]func(Snapshot)
	nextID    int

	unsubscribe func()
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Toaster == nil {
		cfg.Toaster = NewLogToaster(cfg.Log)
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	s := &Store{
		id:        uuid.NewString(),
		api:       cfg.API,
		cache:     cfg.Cache,
		bus:       cfg.Bus,
		toaster:   cfg.Toaster,
		session:   cfg.Session,
		log:       cfg.Log,
		settle:    cfg.SettleDelay,
		listeners: make(map[int]func(Snapshot)),
	}
	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(s.onSignal)
	}
	return s
}

// Close detaches the store from the bus.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// LoadCart does nothing when nobody is signed in.
func (s *Store) LoadCart(ctx context.Context) error {
	user := s.session.UserEmail()
	if user == "" {
		return nil
	}
	snap, err := s.cache.Cart(ctx, user)
	if err != nil {
		s.log.Warn("failed to load cart", zap.String("user_email", user), zap.Error(err))
		s.toaster.Show(ToastError, "Failed to load your cart")
		return err
	}
	s.set(func(st *cartState) {
		st.items = snap.Items
		st.count = snap.Count
	})
	return nil
}

func (s *Store) LoadCartCount(ctx context.Context) error {
	user := s.session.UserEmail()
	if user == "" {
		return nil
	}
	count, err := s.cache.Count(ctx, user)
	if err != nil {
		s.log.Warn("failed to load cart count", zap.String("user_email", user), zap.Error(err))
		return err
	}
	s.set(func(st *cartState) { st.count = count })
	return nil
}

func (s *Store) AddItem(ctx context.Context, eventID, eventTitle string, ticket domain.TicketType, quantity int) error {
	user, err := s.requireUser("add items to your cart")
	if err != nil {
		return err
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return s.invalid("quantity", "must be at least 1")
	}
	if eventID == "" || ticket.Name == "" {
		return s.invalid("ticketType", "event and ticket type are required")
	}

	return s.run(ctx, user, mutation{
		kind: mutationAdd,
		apply: func(st *cartState) int {
			st.count += quantity
			return quantity
		},
		send: func() error {
			_, err := s.api.AddItem(ctx, user, AddItemInput{
				EventID:    eventID,
				EventTitle: eventTitle,
				TicketType: ticket,
				Quantity:   quantity,
			})
			return err
		},
		successText: "Added to cart",
		failureText: "Failed to add item to cart",
	})
}

func (s *Store) RemoveItem(ctx context.Context, itemID string) error {
	user, err := s.requireUser("manage your cart")
	if err != nil {
		return err
	}
	if itemID == "" {
		return s.invalid("itemId", "is required")
	}

	return s.run(ctx, user, mutation{
		kind: mutationRemove,
		apply: func(st *cartState) int {
			line, ok := removeLine(st, itemID)
			if !ok {
				return 0
			}
			st.count = clampCount(st.count - line.Quantity)
			return -line.Quantity
		},
		send:        func() error { return s.api.RemoveItem(ctx, user, itemID) },
		successText: "Removed from cart",
		failureText: "Failed to remove item",
	})
}

// UpdateQuantity removes the line when quantity is zero or less. Local state
// is always replaced by a fresh read afterwards, success or not.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	user, err := s.requireUser("manage your cart")
	if err != nil {
		return err
	}
	if itemID == "" {
		return s.invalid("itemId", "is required")
	}

	return s.run(ctx, user, mutation{
		kind: mutationUpdate,
		apply: func(st *cartState) int {
			if quantity <= 0 {
				line, ok := removeLine(st, itemID)
				if !ok {
					return 0
				}
				st.count = clampCount(st.count - line.Quantity)
				return -line.Quantity
			}
			for i := range st.items {
				if st.items[i].ID == itemID {
					delta := quantity - st.items[i].Quantity
					st.items[i].Quantity = quantity
					st.count = clampCount(st.count + delta)
					return delta
				}
			}
			return 0
		},
		send:        func() error { return s.api.UpdateItem(ctx, user, itemID, quantity) },
		failureText: "Failed to update quantity",
	})
}

func (s *Store) ClearCart(ctx context.Context) error {
	user, err := s.requireUser("manage your cart")
	if err != nil {
		return err
	}

	return s.run(ctx, user, mutation{
		kind: mutationClear,
		apply: func(st *cartState) int {
			delta := -st.count
			st.items = nil
			st.count = 0
			return delta
		},
		send:        func() error { return s.api.ClearCart(ctx, user) },
		failureText: "Failed to clear cart",
	})
}

// run applies m optimistically, sends it, then reconciles according to the
// policy of its kind. Mutations are not serialized: the last response wins.
func (s *Store) run(ctx context.Context, user string, m mutation) error {
	policy := mutationPolicies[m.kind]

	var before cartState
	var delta int
	s.set(func(st *cartState) {
		before = st.clone()
		*st = st.clone()
		delta = m.apply(st)
	})

	if err := m.send(); err != nil {
		s.log.Warn("cart mutation failed",
			zap.String("mutation", string(m.kind)),
			zap.String("user_email", user),
			zap.Error(err))

		switch policy.onFailure {
		case revertDelta:
			s.set(func(st *cartState) { st.count = clampCount(st.count - delta) })
		case restoreSnapshot:
			s.set(func(st *cartState) { *st = before })
		case refetchOnFailure:
			s.cache.Invalidate(user)
			s.reload(ctx)
		}
		s.toaster.Show(ToastError, failureMessage(err, m.failureText))
		return fmt.Errorf("cart %s: %w", m.kind, err)
	}

	s.cache.Invalidate(user)
	if policy.reloadOnSuccess {
		s.reload(ctx)
	}
	s.signal(user, policy.settleSignal)
	if m.successText != "" {
		s.toaster.Show(ToastSuccess, m.successText)
	}
	return nil
}

// reload refreshes cart and count. Failures are logged only; the mutation
// that triggered it has already been reported.
func (s *Store) reload(ctx context.Context) {
	user := s.session.UserEmail()
	if user == "" {
		return
	}
	snap, err := s.cache.Cart(ctx, user)
	if err != nil {
		s.log.Warn("failed to reload cart", zap.String("user_email", user), zap.Error(err))
		return
	}
	count, err := s.cache.Count(ctx, user)
	if err != nil {
		count = snap.Count
	}
	s.set(func(st *cartState) {
		st.items = snap.Items
		st.count = count
	})
}

func (s *Store) signal(user string, afterSettle bool) {
	if s.bus == nil {
		return
	}
	ev := ChangeEvent{UserEmail: user, Source: s.id}
	if afterSettle && s.settle > 0 {
		time.AfterFunc(s.settle, func() { s.bus.Publish(ev) })
		return
	}
	s.bus.Publish(ev)
}

func (s *Store) onSignal(ev ChangeEvent) {
	if ev.Source == s.id || ev.UserEmail != s.session.UserEmail() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), signalReloadTimeout)
	defer cancel()
	s.reload(ctx)
}

func (s *Store) requireUser(action string) (string, error) {
	user := s.session.UserEmail()
	if user == "" {
		s.toaster.Show(ToastError, "Please log in to "+action)
		return "", ErrNotAuthenticated
	}
	return user, nil
}

func (s *Store) invalid(field, msg string) error {
	err := domain.Invalid(field, msg)
	s.toaster.Show(ToastError, err.Error())
	return err
}

func (s *Store) set(fn func(st *cartState)) {
	s.mu.Lock()
	fn(&s.state)
	snap := Snapshot{Items: append([]domain.CartLine(nil), s.state.items...), Count: s.state.count}
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) Items() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.state.items...)
}

// Count is the displayed badge count, which may run ahead of Items while a
// mutation is in flight.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.count
}

func (s *Store) TotalItems() int {
	return domain.CountItems(s.Items())
}

func (s *Store) TotalPrice() float64 {
	return pricing.CartTotal(s.Items())
}

// CheckoutSummary lists the lines in the shape the checkout endpoints take.
func (s *Store) CheckoutSummary() []domain.CheckoutItem {
	items := s.Items()
	out := make([]domain.CheckoutItem, 0, len(items))
	for _, l := range items {
		out = append(out, domain.CheckoutItem{
			EventID:    l.EventID,
			EventTitle: l.EventTitle,
			TicketName: l.TicketType.Name,
			Price:      l.TicketType.Price,
			Quantity:   l.Quantity,
			Total:      pricing.LineTotal(l.TicketType.Price, l.Quantity),
		})
	}
	return out
}

func failureMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
