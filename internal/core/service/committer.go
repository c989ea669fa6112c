package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/port"
)

// Invalidator is told whenever item quantities may have changed.
type Invalidator interface {
	Invalidate()
}

// Committer turns reconciled lines into a persisted shipment.
type Committer struct {
	shipments port.ShipmentRepository
	cache     Invalidator
	now       func() time.Time
}

func NewCommitter(shipments port.ShipmentRepository, cache Invalidator) *Committer {
	return &Committer{shipments: shipments, cache: cache, now: time.Now}
}

// Commit writes every decrement and the shipment as one unit. Shipment items
// copy the name and description read during reconciliation.
func (c *Committer) Commit(ctx context.Context, lines []domain.ReconciledLine, totalPrice decimal.Decimal) (*domain.Shipment, error) {
	if len(lines) == 0 {
		return nil, domain.Malformed("shipment has no items")
	}

	shipment := domain.Shipment{
		ID:         uuid.New(),
		CreatedAt:  c.now().UTC().Truncate(time.Millisecond),
		TotalPrice: totalPrice,
		Items:      make([]domain.ShipmentItem, 0, len(lines)),
	}
	decrements := make([]domain.StockDecrement, 0, len(lines))
	for _, line := range lines {
		shipment.Items = append(shipment.Items, domain.ShipmentItem{
			ItemID:      line.Item.ID,
			Name:        line.Item.Name,
			Description: line.Item.Description,
			Quantity:    line.Requested,
		})
		decrements = append(decrements, line.Decrement())
	}

	if err := c.shipments.CommitShipment(ctx, shipment, decrements); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Invalidate()
	}
	return &shipment, nil
}
