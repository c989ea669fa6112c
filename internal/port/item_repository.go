package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

type ItemRepository interface {
	// FindItems reads every listed item in one batch. Unknown ids are absent from the map.
	FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Item, error)

	// ListItems returns every item in the store
	ListItems(ctx context.Context) ([]domain.Item, error)

	// GetItem returns domain.ErrItemNotFound when the id is unknown
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	CreateItem(ctx context.Context, item domain.Item) error

	// UpdateItem replaces name, description and quantity with version check for optimistic locking
	UpdateItem(ctx context.Context, item domain.Item) error

	DeleteItem(ctx context.Context, id uuid.UUID) error
}
