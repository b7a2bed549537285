package cartclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeAPI is an in-memory cart server that counts calls.
type fakeAPI struct {
	mu     sync.Mutex
	lines  []domain.CartLine
	nextID int

	cartCalls   int
	countCalls  int
	addCalls    int
	removeCalls int
	updateCalls int
	clearCalls  int

	cartErr   error
	addErr    error
	removeErr error
	updateErr error
	clearErr  error

	// gate, when set, holds GetCart until it is closed.
	gate   chan struct{}
	onSend func()
}

func (f *fakeAPI) seed(lines ...domain.CartLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range lines {
		if l.ID == "" {
			f.nextID++
			l.ID = fmt.Sprintf("line-%d", f.nextID)
		}
		f.lines = append(f.lines, l)
	}
}

func (f *fakeAPI) calls() (cart, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cartCalls, f.countCalls
}

func (f *fakeAPI) GetCart(ctx context.Context, userEmail string) (*domain.Cart, error) {
	f.mu.Lock()
	f.cartCalls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cartErr != nil {
		return nil, f.cartErr
	}
	lines := append([]domain.CartLine(nil), f.lines...)
	return &domain.Cart{UserEmail: userEmail, Items: lines, Count: domain.CountItems(lines)}, nil
}

func (f *fakeAPI) GetCartCount(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	if f.cartErr != nil {
		return 0, f.cartErr
	}
	return domain.CountItems(f.lines), nil
}

func (f *fakeAPI) AddItem(_ context.Context, userEmail string, in AddItemInput) (*domain.CartLine, error) {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return nil, f.addErr
	}
	for i := range f.lines {
		if f.lines[i].EventID == in.EventID && f.lines[i].TicketType.Name == in.TicketType.Name {
			f.lines[i].Quantity += in.Quantity
			l := f.lines[i]
			return &l, nil
		}
	}
	f.nextID++
	l := domain.CartLine{
		ID:         fmt.Sprintf("line-%d", f.nextID),
		UserEmail:  userEmail,
		EventID:    in.EventID,
		EventTitle: in.EventTitle,
		TicketType: in.TicketType,
		Quantity:   in.Quantity,
	}
	f.lines = append(f.lines, l)
	return &l, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, _, itemID string, quantity int) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.lines {
		if f.lines[i].ID == itemID {
			if quantity <= 0 {
				f.lines = append(f.lines[:i], f.lines[i+1:]...)
			} else {
				f.lines[i].Quantity = quantity
			}
			return nil
		}
	}
	return &APIError{Status: 404, Code: "not_found", Message: "cart item not found"}
}

func (f *fakeAPI) RemoveItem(_ context.Context, _, itemID string) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.removeErr != nil {
		return f.removeErr
	}
	for i := range f.lines {
		if f.lines[i].ID == itemID {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
			return nil
		}
	}
	return &APIError{Status: 404, Code: "not_found", Message: "cart item not found"}
}

func (f *fakeAPI) ClearCart(context.Context, string) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.lines = nil
	return nil
}

func (f *fakeAPI) hook() {
	f.mu.Lock()
	fn := f.onSend
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type toast struct {
	level   ToastLevel
	message string
}

type recordingToaster struct {
	mu     sync.Mutex
	toasts []toast
}

func (r *recordingToaster) Show(level ToastLevel, message string) {
	r.mu.Lock()
	r.toasts = append(r.toasts, toast{level, message})
	r.mu.Unlock()
}

func (r *recordingToaster) all() []toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toast(nil), r.toasts...)
}

func (r *recordingToaster) last() toast {
	all := r.all()
	if len(all) == 0 {
		return toast{}
	}
	return all[len(all)-1]
}
