package payment

import (
	"context"
	"errors"
	"fmt"
)

type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusSucceeded             IntentStatus = "succeeded"
	StatusCanceled              IntentStatus = "canceled"
)

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrUnavailable means the processor could not be reached or refused to serve.
	ErrUnavailable = errors.New("payment processor unavailable")
	ErrDeclined    = errors.New("payment declined")
)

// DeclineError carries the processor's user-facing decline message unchanged.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
}

func (e *DeclineError) Is(target error) bool {
	return target == ErrDeclined
}

// Intent is a processor-side object representing one intended charge.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	Amount       int64 // minor units
	Currency     string
	Metadata     map[string]string
	LastError    string
}

type IntentParams struct {
	Amount       int64
	Currency     string
	ReceiptEmail string
	Description  string
	Metadata     map[string]string
}

// Card is what the browser-side library collects. Token names a processor
// payment method when the card number never reaches us.
type Card struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
	Token    string
}

type Processor interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

// Confirmer is the client-side half: it completes an intent with card details.
type Confirmer interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, card Card) (*Intent, error)
}
