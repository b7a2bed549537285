package domain

import "time"

// TicketType is the ticket descriptor carried by a cart line.
type TicketType struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// CartLine is one row per (user, event, ticket type) combination.
type CartLine struct {
	ID         string     `json:"id"`
	UserEmail  string     `json:"userEmail"`
	EventID    string     `json:"eventId"`
	EventTitle string     `json:"eventTitle"`
	TicketType TicketType `json:"ticketType"`
	Quantity   int        `json:"quantity"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// LineKey identifies a cart line inside one user's cart.
type LineKey struct {
	EventID    string
	TicketName string
}

func (l CartLine) Key() LineKey {
	return LineKey{EventID: l.EventID, TicketName: l.TicketType.Name}
}

// Cart is the persisted cart of one user together with its aggregate count.
type Cart struct {
	UserEmail string     `json:"userEmail"`
	Items     []CartLine `json:"items"`
	Count     int        `json:"count"`
}

// CountItems sums quantities, which is what the cart count means.
func CountItems(lines []CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}
