package checkout

import (
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/pricing"
)

// GroupByEvent fans checkout items out into one Booking per distinct event,
// in the order events first appear. Lines for the same ticket name within an
// event are merged. Every booking carries paymentIntentID.
func GroupByEvent(items []domain.CheckoutItem, buyer domain.Buyer, paymentIntentID, currency string, bookedAt time.Time) []domain.Booking {
	var out []domain.Booking
	index := make(map[string]int)

	for _, it := range items {
		i, ok := index[it.EventID]
		if !ok {
			i = len(out)
			index[it.EventID] = i
			out = append(out, domain.Booking{
				PaymentIntentID: paymentIntentID,
				EventID:         it.EventID,
				EventTitle:      it.EventTitle,
				UserEmail:       buyer.Email,
				UserName:        buyer.Name,
				Currency:        currency,
				Status:          domain.BookingConfirmed,
				BookedAt:        bookedAt,
			})
		}
		out[i].Tickets = mergeTicket(out[i].Tickets, it)
	}

	for i := range out {
		totals := make([]float64, 0, len(out[i].Tickets))
		for j, t := range out[i].Tickets {
			out[i].Tickets[j].Total = pricing.LineTotal(t.Price, t.Quantity)
			totals = append(totals, out[i].Tickets[j].Total)
		}
		out[i].TotalAmount = pricing.Sum(totals...)
	}
	return out
}

func mergeTicket(tickets []domain.BookingTicket, it domain.CheckoutItem) []domain.BookingTicket {
	for j := range tickets {
		if tickets[j].Name == it.TicketName && tickets[j].Price == it.Price {
			tickets[j].Quantity += it.Quantity
			return tickets
		}
	}
	return append(tickets, domain.BookingTicket{
		Name:     it.TicketName,
		Price:    it.Price,
		Quantity: it.Quantity,
	})
}

// itemsFromTickets turns a single-event selection into checkout items, dropping zero quantities.
func itemsFromTickets(eventID, eventTitle string, details []domain.TicketDetail) []domain.CheckoutItem {
	items := make([]domain.CheckoutItem, 0, len(details))
	for _, d := range details {
		if d.Quantity == 0 {
			continue
		}
		items = append(items, domain.CheckoutItem{
			EventID:    eventID,
			EventTitle: eventTitle,
			TicketName: d.Name,
			Price:      d.Price,
			Quantity:   d.Quantity,
			Total:      pricing.LineTotal(d.Price, d.Quantity),
		})
	}
	return items
}
