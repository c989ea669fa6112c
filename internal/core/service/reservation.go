package service

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

// ParseReservationLines pairs ids[i] with quantities[i]. Lines asking for zero
// or fewer units are dropped; a blank quantity counts as zero.
func ParseReservationLines(ids, quantities []string) ([]domain.ReservationLine, error) {
	if len(ids) != len(quantities) {
		return nil, domain.Malformed("got %d item ids but %d quantities", len(ids), len(quantities))
	}

	lines := make([]domain.ReservationLine, 0, len(ids))
	for i := range ids {
		id, err := uuid.Parse(strings.TrimSpace(ids[i]))
		if err != nil {
			return nil, domain.Malformed("item id %q at position %d is not a valid id", ids[i], i)
		}

		raw := strings.TrimSpace(quantities[i])
		if raw == "" {
			continue
		}
		quantity, err := strconv.Atoi(raw)
		if err != nil {
			return nil, domain.Malformed("quantity %q for item %s is not a number", quantities[i], id)
		}
		if quantity <= 0 {
			continue
		}
		if quantity > domain.MaxQuantity {
			return nil, domain.Malformed("quantity %d for item %s exceeds %d", quantity, id, domain.MaxQuantity)
		}

		lines = append(lines, domain.ReservationLine{ItemID: id, Quantity: quantity})
	}
	return lines, nil
}

// ParsePrice accepts the client-supplied total price as-is. It is not
// recomputed from item data; only its shape is checked.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.Malformed("price %q is not a number", raw)
	}
	if price.IsNegative() {
		return decimal.Zero, domain.Malformed("price %s is negative", price)
	}
	return price, nil
}
