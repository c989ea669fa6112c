package port

import (
	"context"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

type ShipmentPublisher interface {
	PublishShipmentCommitted(ctx context.Context, shipment domain.Shipment) error
}
