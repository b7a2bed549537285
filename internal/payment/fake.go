package payment

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Decline codes the fake processor can produce, with the messages a hosted
// processor shows to the cardholder.
const (
	DeclineCardDeclined      = "card_declined"
	DeclineInsufficientFunds = "insufficient_funds"
	DeclineExpiredCard       = "expired_card"
	DeclineIncorrectCVC      = "incorrect_cvc"
	DeclineProcessingError   = "processing_error"
)

var declineMessages = map[string]string{
	DeclineCardDeclined:      "Your card was declined.",
	DeclineInsufficientFunds: "Your card has insufficient funds.",
	DeclineExpiredCard:       "Your card has expired.",
	DeclineIncorrectCVC:      "Your card's security code is incorrect.",
	DeclineProcessingError:   "An error occurred while processing your card. Try again in a little bit.",
}

// knownDeclines is indexed the way RandomOutcome draws reasons.
var knownDeclines = []string{
	DeclineCardDeclined,
	DeclineInsufficientFunds,
	DeclineExpiredCard,
	DeclineIncorrectCVC,
	DeclineProcessingError,
}

var testCards = map[string]string{
	"4000000000000002": DeclineCardDeclined,
	"4000000000009995": DeclineInsufficientFunds,
	"4000000000000069": DeclineExpiredCard,
	"4000000000000127": DeclineIncorrectCVC,
	"4000000000000119": DeclineProcessingError,
}

// Outcome decides how a confirmation ends: "" approves, anything else is a decline code.
type Outcome func(card Card) string

// TestCardOutcome approves every card except the well-known decline test numbers.
func TestCardOutcome(card Card) string {
	return testCards[strings.ReplaceAll(card.Number, " ", "")]
}

// RandomOutcome approves roughly 95% of confirmations.
func RandomOutcome(Card) string {
	return outcomeFor(rand.Intn(101)) // 101 because Intn is exclusive of the upper bound
}

func outcomeFor(randomInt int) string {
	if randomInt < 95 {
		return ""
	}
	reason := randomInt - 95
	if reason == 0 || reason > len(knownDeclines) {
		return DeclineCardDeclined
	}
	return knownDeclines[reason-1]
}

// FakeProcessor keeps intents in memory. It serves both the server-side
// Processor and the client-side Confirmer so checkout runs end to end
// without a hosted processor.
type FakeProcessor struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	bySecret map[string]string
	outcome  Outcome
}

func NewFakeProcessor(outcome Outcome) *FakeProcessor {
	if outcome == nil {
		outcome = TestCardOutcome
	}
	return &FakeProcessor{
		intents:  make(map[string]*Intent),
		bySecret: make(map[string]string),
		outcome:  outcome,
	}
}

func (f *FakeProcessor) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		Status:       StatusRequiresPaymentMethod,
		Amount:       params.Amount,
		Currency:     params.Currency,
		Metadata:     copyMetadata(params.Metadata),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id] = in
	f.bySecret[in.ClientSecret] = id
	return in.clone(), nil
}

func (f *FakeProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return in.clone(), nil
}

func (f *FakeProcessor) ConfirmCardPayment(ctx context.Context, clientSecret string, card Card) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[f.bySecret[clientSecret]]
	if !ok {
		return nil, ErrIntentNotFound
	}
	switch in.Status {
	case StatusSucceeded:
		return in.clone(), nil
	case StatusCanceled:
		return nil, &DeclineError{Code: "payment_intent_unexpected_state", Message: "This payment has been canceled."}
	}

	if code := f.outcome(card); code != "" {
		msg, known := declineMessages[code]
		if !known {
			msg = declineMessages[DeclineCardDeclined]
		}
		in.Status = StatusRequiresPaymentMethod
		in.LastError = msg
		return nil, &DeclineError{Code: code, Message: msg}
	}
	in.Status = StatusSucceeded
	in.LastError = ""
	return in.clone(), nil
}

// SetStatus forces an intent into a status, as a webhook or dashboard action would.
func (f *FakeProcessor) SetStatus(id string, status IntentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status = status
	return nil
}

func (i *Intent) clone() *Intent {
	out := *i
	out.Metadata = copyMetadata(i.Metadata)
	return &out
}

func copyMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
