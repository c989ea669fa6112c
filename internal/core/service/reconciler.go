package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/port"
)

// Reconciler checks reservation lines against the item store. It always reads
// the store, never the item cache, and writes nothing.
type Reconciler struct {
	items port.ItemRepository
}

func NewReconciler(items port.ItemRepository) *Reconciler {
	return &Reconciler{items: items}
}

// Reconcile resolves every line in one batch read. Lines naming the same item
// are merged; the result keeps the order in which items first appeared.
func (r *Reconciler) Reconcile(ctx context.Context, lines []domain.ReservationLine) ([]domain.ReconciledLine, error) {
	order := make([]uuid.UUID, 0, len(lines))
	requested := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 || line.Quantity > domain.MaxQuantity {
			return nil, domain.Malformed("quantity %d for item %s is out of range", line.Quantity, line.ItemID)
		}
		sum, seen := requested[line.ItemID]
		if !seen {
			order = append(order, line.ItemID)
		}
		if sum > domain.MaxQuantity-line.Quantity {
			return nil, domain.Malformed("total quantity for item %s exceeds %d", line.ItemID, domain.MaxQuantity)
		}
		requested[line.ItemID] = sum + line.Quantity
	}

	found, err := r.items.FindItems(ctx, order)
	if err != nil {
		return nil, err
	}

	reconciled := make([]domain.ReconciledLine, 0, len(order))
	for _, id := range order {
		item, ok := found[id]
		if !ok {
			return nil, &domain.ItemNotFoundError{ItemID: id}
		}

		want := requested[id]
		newQuantity := item.Quantity - want
		if newQuantity < 0 {
			return nil, &domain.InsufficientStockError{
				ItemID:    id,
				Available: item.Quantity,
				Requested: want,
			}
		}

		reconciled = append(reconciled, domain.ReconciledLine{
			Item:        item,
			Requested:   want,
			NewQuantity: newQuantity,
		})
	}
	return reconciled, nil
}
