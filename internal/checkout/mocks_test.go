package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_tickets/internal/bookings"
	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/payment"
)

type mockStore struct {
	m         sync.Mutex
	pending   map[string]*domain.PendingPayment
	bookings  map[string][]domain.Booking
	outbox    int
	saveCalls int
	pendErr   error
	saveErr   error
	marks     []string
}

func newMockStore() *mockStore {
	return &mockStore{
		pending:  make(map[string]*domain.PendingPayment),
		bookings: make(map[string][]domain.Booking),
	}
}

func (m *mockStore) CreatePendingPayment(_ context.Context, p *domain.PendingPayment) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.pendErr != nil {
		return m.pendErr
	}
	if _, ok := m.pending[p.PaymentIntentID]; ok {
		return nil
	}
	cp := *p
	cp.Status = domain.PendingAwaitingBooking
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.pending[p.PaymentIntentID] = &cp
	return nil
}

func (m *mockStore) SaveBookings(_ context.Context, intentID string, bs []domain.Booking) ([]domain.Booking, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	inserted := 0
	for i, b := range bs {
		exists := false
		for _, have := range m.bookings[intentID] {
			if have.EventID == b.EventID {
				exists = true
			}
		}
		if exists {
			continue
		}
		b.ID = intentID + "-" + string(rune('a'+i))
		m.bookings[intentID] = append(m.bookings[intentID], b)
		inserted++
	}
	if p, ok := m.pending[intentID]; ok {
		p.Status = domain.PendingBooked
	}
	if inserted > 0 {
		m.outbox++
	}
	return append([]domain.Booking(nil), m.bookings[intentID]...), nil
}

func (m *mockStore) ListBookingsByIntent(_ context.Context, intentID string) ([]domain.Booking, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]domain.Booking(nil), m.bookings[intentID]...), nil
}

func (m *mockStore) ListBookingsByUser(_ context.Context, email string) ([]domain.Booking, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []domain.Booking
	for _, bs := range m.bookings {
		for _, b := range bs {
			if b.UserEmail == email {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (m *mockStore) GetPendingPayment(_ context.Context, intentID string) (*domain.PendingPayment, error) {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.pending[intentID]
	if !ok {
		return nil, bookings.ErrPendingPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListPendingPayments(_ context.Context, olderThan time.Time, limit int) ([]*domain.PendingPayment, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []*domain.PendingPayment
	for _, p := range m.pending {
		if p.Status == domain.PendingAwaitingBooking && p.CreatedAt.Before(olderThan) && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) MarkPendingPayment(_ context.Context, intentID string, status domain.PendingStatus, lastErr string) error {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.pending[intentID]
	if !ok {
		return errors.New("not found")
	}
	p.Status = status
	p.LastError = lastErr
	p.Attempts++
	m.marks = append(m.marks, intentID)
	return nil
}

func (m *mockStore) age(intentID string, d time.Duration) {
	m.m.Lock()
	defer m.m.Unlock()
	m.pending[intentID].CreatedAt = m.pending[intentID].CreatedAt.Add(-d)
}

func (m *mockStore) pendingStatus(intentID string) domain.PendingStatus {
	m.m.Lock()
	defer m.m.Unlock()
	return m.pending[intentID].Status
}

type countingProcessor struct {
	*payment.FakeProcessor
	gets int
}

func (c *countingProcessor) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	c.gets++
	return c.FakeProcessor.GetIntent(ctx, id)
}
