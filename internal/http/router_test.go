package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_tickets/internal/checkout"
	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/payment"
	"github.com/fjod/go_tickets/internal/repository"
	"github.com/fjod/go_tickets/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCarts struct {
	cart     *domain.Cart
	count    int
	line     *domain.CartLine
	err      error
	lastUser string
	lastAdd  service.AddItemRequest
	lastQty  int
	lastItem string
	cleared  bool
}

func (f *fakeCarts) GetCart(_ context.Context, user string) (*domain.Cart, error) {
	f.lastUser = user
	return f.cart, f.err
}

func (f *fakeCarts) GetCartCount(_ context.Context, user string) (int, error) {
	f.lastUser = user
	return f.count, f.err
}

func (f *fakeCarts) AddToCart(_ context.Context, req service.AddItemRequest) (*domain.CartLine, error) {
	f.lastAdd = req
	return f.line, f.err
}

func (f *fakeCarts) UpdateCartItem(_ context.Context, user, itemID string, qty int) (*domain.CartLine, error) {
	f.lastUser, f.lastItem, f.lastQty = user, itemID, qty
	if qty <= 0 {
		return nil, f.err
	}
	return f.line, f.err
}

func (f *fakeCarts) RemoveFromCart(_ context.Context, user, itemID string) error {
	f.lastUser, f.lastItem = user, itemID
	return f.err
}

func (f *fakeCarts) ClearCart(_ context.Context, user string) error {
	f.lastUser = user
	f.cleared = f.err == nil
	return f.err
}

type fakeCheckout struct {
	intent    *checkout.IntentResult
	bookings  []domain.Booking
	err       error
	lastMulti checkout.MultiEventIntentRequest
	lastSave  checkout.MultiEventBookingRequest
	lastOne   checkout.SingleEventIntentRequest
}

func (f *fakeCheckout) CreatePaymentIntent(_ context.Context, req checkout.SingleEventIntentRequest) (*checkout.IntentResult, error) {
	f.lastOne = req
	return f.intent, f.err
}

func (f *fakeCheckout) CreateMultiEventPaymentIntent(_ context.Context, req checkout.MultiEventIntentRequest) (*checkout.IntentResult, error) {
	f.lastMulti = req
	return f.intent, f.err
}

func (f *fakeCheckout) SaveBooking(context.Context, checkout.SingleEventBookingRequest) ([]domain.Booking, error) {
	return f.bookings, f.err
}

func (f *fakeCheckout) SaveMultiEventBooking(_ context.Context, req checkout.MultiEventBookingRequest) ([]domain.Booking, error) {
	f.lastSave = req
	return f.bookings, f.err
}

func (f *fakeCheckout) ListBookings(context.Context, string) ([]domain.Booking, error) {
	return f.bookings, f.err
}

func newTestRouter(carts *fakeCarts, co *fakeCheckout) http.Handler {
	return NewRouter(RouterConfig{
		Carts:          carts,
		Checkout:       co,
		Log:            zap.NewNop(),
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
	})
}

func do(t *testing.T, h http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserEmailHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleLine() *domain.CartLine {
	return &domain.CartLine{
		ID:         "65f0c0ffee",
		UserEmail:  "ann@example.com",
		EventID:    "e1",
		EventTitle: "Jazz",
		TicketType: domain.TicketType{Name: "VIP", Price: 50},
		Quantity:   2,
	}
}

func TestHealth_NoIdentityNeeded(t *testing.T) {
	rec := do(t, newTestRouter(&fakeCarts{}, &fakeCheckout{}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestGetCart_Unauthorized(t *testing.T) {
	rec := do(t, newTestRouter(&fakeCarts{}, &fakeCheckout{}), http.MethodGet, "/api/cart/ann@example.com", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)
}

func TestGetCart_OtherUserForbidden(t *testing.T) {
	carts := &fakeCarts{cart: &domain.Cart{}}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodGet, "/api/cart/bob@example.com", "ann@example.com", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, carts.lastUser)
}

func TestGetCart_Success(t *testing.T) {
	carts := &fakeCarts{cart: &domain.Cart{Items: []domain.CartLine{*sampleLine()}, Count: 2}}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodGet, "/api/cart/Ann%40Example.com", "ann@example.com", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))

	var resp CartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "VIP", resp.Items[0].TicketType.Name)
	assert.Equal(t, "ann@example.com", carts.lastUser)
}

func TestGetCart_EmptyItemsIsArray(t *testing.T) {
	carts := &fakeCarts{cart: &domain.Cart{}}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodGet, "/api/cart/ann@example.com", "ann@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"count":0}`, rec.Body.String())
}

func TestGetCartCount(t *testing.T) {
	carts := &fakeCarts{count: 7}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodGet, "/api/cart/count/ann@example.com", "ann@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":7}`, rec.Body.String())
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
}

func TestAddItem_Created(t *testing.T) {
	carts := &fakeCarts{line: sampleLine()}
	body := map[string]interface{}{
		"userEmail":  "ann@example.com",
		"eventId":    "e1",
		"eventTitle": "Jazz",
		"ticketType": map[string]interface{}{"name": "VIP", "price": 50, "description": "Front row"},
		"quantity":   2,
	}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodPost, "/api/cart/add", "ann@example.com", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ItemResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Item.Quantity)
	assert.Equal(t, "Front row", carts.lastAdd.TicketType.Description)
	assert.Equal(t, 50.0, carts.lastAdd.TicketType.Price)
}

func TestAddItem_BodyEmailDefaultsToIdentity(t *testing.T) {
	carts := &fakeCarts{line: sampleLine()}
	body := map[string]interface{}{"eventId": "e1", "ticketType": map[string]interface{}{"name": "GA"}}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodPost, "/api/cart/add", "ann@example.com", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ann@example.com", carts.lastAdd.UserEmail)
}

func TestAddItem_ValidationError(t *testing.T) {
	carts := &fakeCarts{err: domain.Invalid("eventId", "is required")}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodPost, "/api/cart/add", "ann@example.com", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Equal(t, "eventId: is required", resp.Error)
}

func TestAddItem_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/add", strings.NewReader("{"))
	req.Header.Set(UserEmailHeader, "ann@example.com")
	rec := httptest.NewRecorder()
	newTestRouter(&fakeCarts{}, &fakeCheckout{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestAddItem_BodyTooLarge(t *testing.T) {
	h := NewRouter(RouterConfig{
		Carts: &fakeCarts{}, Checkout: &fakeCheckout{}, Log: zap.NewNop(),
		RequestTimeout: time.Second, MaxBodyBytes: 16,
	})
	body := map[string]string{"eventTitle": strings.Repeat("x", 64)}
	rec := do(t, h, http.MethodPost, "/api/cart/add", "ann@example.com", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAddItem_TransientStorage(t *testing.T) {
	carts := &fakeCarts{err: fmt.Errorf("%w: %w", repository.ErrTransient, errors.New("no reachable servers"))}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodPost, "/api/cart/add", "ann@example.com", map[string]string{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage_unavailable", decodeError(t, rec).Code)
}

func TestUpdateItem(t *testing.T) {
	carts := &fakeCarts{line: sampleLine()}
	h := newTestRouter(carts, &fakeCheckout{})

	rec := do(t, h, http.MethodPut, "/api/cart/update", "ann@example.com", UpdateItemRequestDTO{ItemID: "abc", Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, carts.lastQty)
	assert.Contains(t, rec.Body.String(), `"item"`)

	rec = do(t, h, http.MethodPut, "/api/cart/update", "ann@example.com", UpdateItemRequestDTO{ItemID: "abc", Quantity: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true}`, rec.Body.String())
}

func TestUpdateItem_ForeignEmailInBody(t *testing.T) {
	carts := &fakeCarts{}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodPut, "/api/cart/update", "ann@example.com",
		UpdateItemRequestDTO{UserEmail: "bob@example.com", ItemID: "abc", Quantity: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, carts.lastItem)
}

func TestRemoveItem(t *testing.T) {
	carts := &fakeCarts{}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodDelete, "/api/cart/remove", "ann@example.com",
		RemoveItemRequestDTO{UserEmail: "ann@example.com", ItemID: "abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", carts.lastItem)
}

func TestRemoveItem_NotFound(t *testing.T) {
	carts := &fakeCarts{err: repository.ErrItemNotFound}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodDelete, "/api/cart/remove", "ann@example.com",
		RemoveItemRequestDTO{ItemID: "abc"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearCart(t *testing.T) {
	carts := &fakeCarts{}
	rec := do(t, newTestRouter(carts, &fakeCheckout{}), http.MethodDelete, "/api/cart/clear/ann@example.com", "ann@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, carts.cleared)
}

func TestCreateMultiEventPaymentIntent(t *testing.T) {
	co := &fakeCheckout{intent: &checkout.IntentResult{ClientSecret: "pi_1_secret_x", PaymentIntentID: "pi_1"}}
	body := MultiEventPaymentIntentRequestDTO{
		Items:    []domain.CheckoutItem{{EventID: "e1", TicketName: "GA", Price: 10, Quantity: 2, Total: 20}},
		Amount:   20,
		UserName: "Ann",
	}
	rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodPost, "/api/create-multi-event-payment-intent", "ann@example.com", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"clientSecret":"pi_1_secret_x","paymentIntentId":"pi_1"}`, rec.Body.String())
	assert.Equal(t, domain.Buyer{Email: "ann@example.com", Name: "Ann"}, co.lastMulti.Buyer)
	assert.Equal(t, 20.0, co.lastMulti.Amount)
}

func TestCreatePaymentIntent_SingleEvent(t *testing.T) {
	co := &fakeCheckout{intent: &checkout.IntentResult{ClientSecret: "s", PaymentIntentID: "pi_2"}}
	body := PaymentIntentRequestDTO{
		Amount:        30,
		EventID:       "e1",
		EventTitle:    "Jazz",
		TicketDetails: []domain.TicketDetail{{Name: "GA", Price: 15, Quantity: 2}},
	}
	rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodPost, "/api/create-payment-intent", "ann@example.com", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "e1", co.lastOne.EventID)
	assert.Equal(t, "ann@example.com", co.lastOne.Buyer.Email)
}

func TestCheckoutErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"declined", &payment.DeclineError{Code: "card_declined", Message: "Your card was declined."}, http.StatusPaymentRequired, "payment_declined"},
		{"not succeeded", fmt.Errorf("%w: intent status is processing", checkout.ErrPaymentNotSucceeded), http.StatusPaymentRequired, "payment_not_succeeded"},
		{"breaker open", fmt.Errorf("%w: circuit breaker is open", payment.ErrUnavailable), http.StatusServiceUnavailable, "payment_unavailable"},
		{"unknown intent", payment.ErrIntentNotFound, http.StatusNotFound, "not_found"},
		{"amount mismatch", checkout.ErrAmountMismatch, http.StatusBadRequest, "amount_mismatch"},
		{"unexpected", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			co := &fakeCheckout{err: tt.err}
			rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodPost, "/api/save-multi-event-booking", "ann@example.com",
				SaveMultiEventBookingRequestDTO{PaymentIntentID: "pi_1"})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestCheckoutErrors_DeclineMessageVerbatim(t *testing.T) {
	co := &fakeCheckout{err: &payment.DeclineError{Code: "insufficient_funds", Message: "Your card has insufficient funds."}}
	rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodPost, "/api/create-multi-event-payment-intent", "ann@example.com",
		MultiEventPaymentIntentRequestDTO{})
	assert.Equal(t, "Your card has insufficient funds.", decodeError(t, rec).Error)
}

func TestCheckoutErrors_InternalDetailsHidden(t *testing.T) {
	co := &fakeCheckout{err: errors.New("pq: password authentication failed")}
	rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodPost, "/api/save-booking", "ann@example.com", SaveBookingRequestDTO{})
	resp := decodeError(t, rec)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestSaveMultiEventBooking(t *testing.T) {
	co := &fakeCheckout{bookings: []domain.Booking{
		{ID: "b1", PaymentIntentID: "pi_1", EventID: "e1"},
		{ID: "b2", PaymentIntentID: "pi_1", EventID: "e2"},
	}}
	rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodPost, "/api/save-multi-event-booking", "ann@example.com",
		SaveMultiEventBookingRequestDTO{PaymentIntentID: "pi_1", UserEmail: "ann@example.com", UserName: "Ann"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp BookingsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Bookings, 2)
	assert.Equal(t, "pi_1", co.lastSave.PaymentIntentID)
	assert.Equal(t, "Ann", co.lastSave.Buyer.Name)
}

func TestListBookings(t *testing.T) {
	co := &fakeCheckout{}
	rec := do(t, newTestRouter(&fakeCarts{}, co), http.MethodGet, "/api/bookings/ann@example.com", "ann@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookings":[]}`, rec.Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	newTestRouter(&fakeCarts{}, &fakeCheckout{}).ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}
