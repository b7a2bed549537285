package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// intentsAPI is the subset of the stripe payment intents client we call.
type intentsAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

type StripeProcessor struct {
	intents intentsAPI
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	sc := client.New(secretKey, nil)
	return &StripeProcessor{intents: sc.PaymentIntents}
}

func (s *StripeProcessor) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripe(pi), nil
}

func (s *StripeProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripe(pi), nil
}

// ConfirmCardPayment confirms with a tokenized payment method (card.Token,
// e.g. "pm_card_visa" in test mode). Raw card numbers are never sent.
func (s *StripeProcessor) ConfirmCardPayment(ctx context.Context, clientSecret string, card Card) (*Intent, error) {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || card.Token == "" {
		return nil, fmt.Errorf("confirm requires a client secret and a payment method token")
	}
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(card.Token),
	}
	params.Context = ctx
	pi, err := s.intents.Confirm(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	if pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod && pi.LastPaymentError != nil {
		return nil, &DeclineError{Code: string(pi.LastPaymentError.Code), Message: pi.LastPaymentError.Msg}
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		in.LastError = pi.LastPaymentError.Msg
	}
	return in
}

func mapStripeError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	switch {
	case serr.Type == stripe.ErrorTypeCard:
		return &DeclineError{Code: string(serr.Code), Message: serr.Msg}
	case serr.Code == stripe.ErrorCodeResourceMissing || serr.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrIntentNotFound, serr.Msg)
	case serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrUnavailable, serr.Msg)
	default:
		return fmt.Errorf("payment processor error: %w", err)
	}
}
