// Package pricing holds the money helpers shared by the cart and checkout.
package pricing

import (
	"fmt"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/shopspring/decimal"
)

// FormatPrice renders a unit price for display; zero-priced tickets are "Free".
func FormatPrice(price float64) string {
	if IsFree(price) {
		return "Free"
	}
	return fmt.Sprintf("$%s", decimal.NewFromFloat(price).StringFixed(2))
}

func IsFree(price float64) bool {
	return decimal.NewFromFloat(price).Round(2).IsZero()
}

// LineTotal is price*qty rounded to cents.
func LineTotal(price float64, qty int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).Round(2).InexactFloat64()
}

// Sum adds amounts without accumulating float drift.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(2).InexactFloat64()
}

// CartTotal is the sum of unit price * quantity over all lines.
func CartTotal(lines []domain.CartLine) float64 {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(decimal.NewFromFloat(l.TicketType.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2).InexactFloat64()
}

// ItemsTotal is the sum of price * quantity over checkout items. Declared
// item totals are ignored so a tampered total cannot change the charge.
func ItemsTotal(items []domain.CheckoutItem) float64 {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2).InexactFloat64()
}

// ToMinorUnits converts a major-unit amount (dollars) to processor cents.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinorUnits(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// SameAmount reports whether two amounts agree within half a cent.
func SameAmount(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThan(decimal.NewFromFloat(0.005))
}

// MaxSelectable bounds the quantity picker: min(per-order cap, remaining).
// A zero per-order cap means the ticket has none.
func MaxSelectable(t domain.EventTicket) int {
	limit := t.Remaining()
	if t.MaxPerOrder > 0 && t.MaxPerOrder < limit {
		limit = t.MaxPerOrder
	}
	return limit
}

// ClampQuantity keeps a requested quantity inside [0, MaxSelectable].
func ClampQuantity(t domain.EventTicket, qty int) int {
	if qty < 0 {
		return 0
	}
	if m := MaxSelectable(t); qty > m {
		return m
	}
	return qty
}
