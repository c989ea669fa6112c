package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

type ShipmentRepository interface {
	// CommitShipment applies every decrement and inserts the shipment in one
	// transaction. A decrement whose expected version or quantity no longer
	// holds fails the whole commit with domain.ErrCommitConflict.
	CommitShipment(ctx context.Context, shipment domain.Shipment, decrements []domain.StockDecrement) error

	ListShipments(ctx context.Context) ([]domain.Shipment, error)

	GetShipment(ctx context.Context, id uuid.UUID) (*domain.Shipment, error)
}
