package payment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/pricing"
	"github.com/shopspring/decimal"
)

// Processor-side metadata limits.
const (
	maxMetadataKeys  = 50
	maxMetadataValue = 500
)

// reserved keys written besides the item_N entries
const reservedKeys = 3

// BuildMetadata snapshots the purchased items into intent metadata so the
// charge can be audited and reconciled without the client.
func BuildMetadata(items []domain.CheckoutItem, userEmail string) map[string]string {
	md := make(map[string]string, len(items)+reservedKeys)
	md["user_email"] = truncate(userEmail)
	md["item_count"] = strconv.Itoa(len(items))

	var eventIDs []string
	seen := make(map[string]bool)
	for i, it := range items {
		if !seen[it.EventID] {
			seen[it.EventID] = true
			eventIDs = append(eventIDs, it.EventID)
		}
		if i >= maxMetadataKeys-reservedKeys {
			continue
		}
		md[fmt.Sprintf("item_%d", i)] = truncate(strings.Join([]string{
			it.EventID,
			it.EventTitle,
			it.TicketName,
			decimal.NewFromFloat(it.Price).StringFixed(2),
			strconv.Itoa(it.Quantity),
			decimal.NewFromFloat(pricing.LineTotal(it.Price, it.Quantity)).StringFixed(2),
		}, "|"))
	}
	md["event_ids"] = truncate(strings.Join(eventIDs, ","))
	return md
}

func truncate(s string) string {
	if len(s) <= maxMetadataValue {
		return s
	}
	return strings.ToValidUTF8(s[:maxMetadataValue], "")
}
