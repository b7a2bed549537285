package domain

// CheckoutItem is one checkout-ready summary row.
type CheckoutItem struct {
	EventID    string  `json:"eventId"`
	EventTitle string  `json:"eventTitle"`
	TicketName string  `json:"ticketName"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	Total      float64 `json:"total"`
}

// TicketDetail is the per-ticket selection of a single-event checkout.
type TicketDetail struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Buyer is the purchaser identity attached to bookings.
type Buyer struct {
	Email string `json:"userEmail"`
	Name  string `json:"userName"`
}

type CheckoutState string

const (
	CheckoutIdle            CheckoutState = "idle"
	CheckoutIntentRequested CheckoutState = "intent_requested"
	CheckoutConfirming      CheckoutState = "confirming"
	CheckoutSucceeded       CheckoutState = "succeeded"
	CheckoutFailed          CheckoutState = "failed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutIdle:            {CheckoutIntentRequested},
	CheckoutIntentRequested: {CheckoutConfirming, CheckoutFailed},
	CheckoutConfirming:      {CheckoutSucceeded, CheckoutFailed},
	CheckoutSucceeded:       {CheckoutIdle},
	CheckoutFailed:          {CheckoutIdle, CheckoutIntentRequested},
}

func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutSucceeded || s == CheckoutFailed
}

func (s CheckoutState) String() string {
	return string(s)
}
