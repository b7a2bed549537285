package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const userEmailHeader = "X-User-Email"

// APIError is a non-2xx answer from the ticketing API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

type AddItemInput struct {
	EventID    string            `json:"eventId"`
	EventTitle string            `json:"eventTitle"`
	TicketType domain.TicketType `json:"ticketType"`
	Quantity   int               `json:"quantity"`
}

type PaymentIntent struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type MultiEventIntentInput struct {
	Items     []domain.CheckoutItem `json:"items"`
	Amount    float64               `json:"amount"`
	UserEmail string                `json:"userEmail"`
	UserName  string                `json:"userName"`
}

type EventIntentInput struct {
	Amount        float64               `json:"amount"`
	EventID       string                `json:"eventId"`
	EventTitle    string                `json:"eventTitle"`
	TicketDetails []domain.TicketDetail `json:"ticketDetails"`
	UserEmail     string                `json:"userEmail"`
	UserName      string                `json:"userName"`
}

type MultiEventBookingInput struct {
	PaymentIntentID string                `json:"paymentIntentId"`
	Items           []domain.CheckoutItem `json:"items"`
	UserEmail       string                `json:"userEmail"`
	UserName        string                `json:"userName"`
}

type EventBookingInput struct {
	PaymentIntentID string                `json:"paymentIntentId"`
	EventID         string                `json:"eventId"`
	EventTitle      string                `json:"eventTitle"`
	TicketDetails   []domain.TicketDetail `json:"ticketDetails"`
	UserEmail       string                `json:"userEmail"`
	UserName        string                `json:"userName"`
	TotalAmount     float64               `json:"totalAmount"`
}

// API talks to the cart and checkout endpoints on behalf of one client.
type API struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
	}
}

func (a *API) GetCart(ctx context.Context, userEmail string) (*domain.Cart, error) {
	var resp struct {
		Items []domain.CartLine `json:"items"`
		Count int               `json:"count"`
	}
	if err := a.read(ctx, userEmail, "/api/cart/"+url.PathEscape(userEmail), &resp); err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &domain.Cart{UserEmail: userEmail, Items: resp.Items, Count: resp.Count}, nil
}

func (a *API) GetCartCount(ctx context.Context, userEmail string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := a.read(ctx, userEmail, "/api/cart/count/"+url.PathEscape(userEmail), &resp); err != nil {
		return 0, fmt.Errorf("failed to get cart count: %w", err)
	}
	return resp.Count, nil
}

func (a *API) AddItem(ctx context.Context, userEmail string, in AddItemInput) (*domain.CartLine, error) {
	body := struct {
		UserEmail string `json:"userEmail"`
		AddItemInput
	}{userEmail, in}
	var resp struct {
		Item *domain.CartLine `json:"item"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/cart/add", userEmail, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	return resp.Item, nil
}

func (a *API) UpdateItem(ctx context.Context, userEmail, itemID string, quantity int) error {
	body := map[string]interface{}{"userEmail": userEmail, "itemId": itemID, "quantity": quantity}
	if err := a.do(ctx, http.MethodPut, "/api/cart/update", userEmail, body, nil); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}

func (a *API) RemoveItem(ctx context.Context, userEmail, itemID string) error {
	body := map[string]string{"userEmail": userEmail, "itemId": itemID}
	if err := a.do(ctx, http.MethodDelete, "/api/cart/remove", userEmail, body, nil); err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	return nil
}

func (a *API) ClearCart(ctx context.Context, userEmail string) error {
	if err := a.do(ctx, http.MethodDelete, "/api/cart/clear/"+url.PathEscape(userEmail), userEmail, nil, nil); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (a *API) CreatePaymentIntent(ctx context.Context, in EventIntentInput) (*PaymentIntent, error) {
	var resp PaymentIntent
	if err := a.do(ctx, http.MethodPost, "/api/create-payment-intent", in.UserEmail, in, &resp); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &resp, nil
}

func (a *API) CreateMultiEventPaymentIntent(ctx context.Context, in MultiEventIntentInput) (*PaymentIntent, error) {
	var resp PaymentIntent
	if err := a.do(ctx, http.MethodPost, "/api/create-multi-event-payment-intent", in.UserEmail, in, &resp); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &resp, nil
}

func (a *API) SaveBooking(ctx context.Context, in EventBookingInput) ([]domain.Booking, error) {
	var resp struct {
		Bookings []domain.Booking `json:"bookings"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/save-booking", in.UserEmail, in, &resp); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}
	return resp.Bookings, nil
}

func (a *API) SaveMultiEventBooking(ctx context.Context, in MultiEventBookingInput) ([]domain.Booking, error) {
	var resp struct {
		Bookings []domain.Booking `json:"bookings"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/save-multi-event-booking", in.UserEmail, in, &resp); err != nil {
		return nil, fmt.Errorf("failed to save bookings: %w", err)
	}
	return resp.Bookings, nil
}

// read is a GET that defeats every HTTP cache on the way; SharedCache is the
// only cache cart reads may hit.
func (a *API) read(ctx context.Context, userEmail, path string, out interface{}) error {
	q := url.Values{}
	q.Set("_t", strconv.FormatInt(a.now().UnixNano(), 10))
	req, err := a.newRequest(ctx, http.MethodGet, path+"?"+q.Encode(), userEmail, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	return a.send(req, out)
}

func (a *API) do(ctx context.Context, method, path, userEmail string, body, out interface{}) error {
	req, err := a.newRequest(ctx, method, path, userEmail, body)
	if err != nil {
		return err
	}
	return a.send(req, out)
}

func (a *API) newRequest(ctx context.Context, method, path, userEmail string, body interface{}) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(userEmailHeader, userEmail)
	return req, nil
}

func (a *API) send(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
