package domain

// EventTicket is the read-only reference data the cart consumes from the
// organizer side: price, inventory and the per-order cap.
type EventTicket struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	Sold        int     `json:"sold"`
	MaxPerOrder int     `json:"maxPerOrder"`
}

// Remaining never goes below zero even when sold counts overshoot.
func (t EventTicket) Remaining() int {
	if r := t.Quantity - t.Sold; r > 0 {
		return r
	}
	return 0
}

func (t EventTicket) Descriptor() TicketType {
	return TicketType{Name: t.Name, Price: t.Price, Description: t.Description}
}
