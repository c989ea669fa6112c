package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShipmentItem is a copy of the item fields taken at commit time. Later edits
// to the item never change it.
type ShipmentItem struct {
	ItemID      uuid.UUID `json:"item_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Quantity    int       `json:"shipped_quantity"`
}

type Shipment struct {
	ID         uuid.UUID       `json:"id"`
	CreatedAt  time.Time       `json:"creation_date"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []ShipmentItem  `json:"items"`
}

// TotalQuantity returns the number of units the shipment removed from stock.
func (s Shipment) TotalQuantity() int {
	total := 0
	for _, it := range s.Items {
		total += it.Quantity
	}
	return total
}
