package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/port"
)

// ItemInput carries the raw item form fields.
type ItemInput struct {
	Name        string
	Description string
	Quantity    string
}

// ItemService is the single-item CRUD surface. Every write invalidates the item cache.
type ItemService struct {
	options
	items port.ItemRepository
	cache *ItemCache
	now   func() time.Time
}

func NewItemService(items port.ItemRepository, cache *ItemCache, opts ...Option) *ItemService {
	return &ItemService{
		options: newOptions(opts),
		items:   items,
		cache:   cache,
		now:     time.Now,
	}
}

func (s *ItemService) CreateItem(ctx context.Context, in ItemInput) (*domain.Item, error) {
	name, description, quantity, err := validateItem(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	item := domain.Item{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Quantity:    quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.items.CreateItem(ctx, item); err != nil {
		return nil, storeErr(err)
	}
	s.cache.Invalidate()

	s.logger.Info().Str("item_id", item.ID.String()).Int("quantity", item.Quantity).Msg("item created")
	return &item, nil
}

func (s *ItemService) GetItem(ctx context.Context, rawID string) (*domain.Item, error) {
	id, err := parseItemID(rawID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return item, nil
}

// UpdateItem replaces the editable fields. The write is conditioned on the
// version just read, so an edit racing a shipment fails with ErrCommitConflict
// instead of overwriting the decrement.
func (s *ItemService) UpdateItem(ctx context.Context, rawID string, in ItemInput) (*domain.Item, error) {
	id, err := parseItemID(rawID)
	if err != nil {
		return nil, err
	}
	name, description, quantity, err := validateItem(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	current, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}

	updated := *current
	updated.Name = name
	updated.Description = description
	updated.Quantity = quantity
	updated.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	if err := s.items.UpdateItem(ctx, updated); err != nil {
		return nil, storeErr(err)
	}
	s.cache.Invalidate()

	updated.Version++
	s.logger.Info().Str("item_id", id.String()).Int("quantity", quantity).Msg("item updated")
	return &updated, nil
}

func (s *ItemService) DeleteItem(ctx context.Context, rawID string) error {
	id, err := parseItemID(rawID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.items.DeleteItem(ctx, id); err != nil {
		return storeErr(err)
	}
	s.cache.Invalidate()

	s.logger.Info().Str("item_id", id.String()).Msg("item deleted")
	return nil
}

// ListItems serves the listing views from the cache.
func (s *ItemService) ListItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.cache.Items(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

func parseItemID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, domain.Malformed("item id %q is not a valid id", raw)
	}
	return id, nil
}

// validateItem requires a name, a description and a quantity of at least zero.
func validateItem(in ItemInput) (name, description string, quantity int, err error) {
	name = strings.TrimSpace(in.Name)
	description = strings.TrimSpace(in.Description)
	if name == "" {
		return "", "", 0, domain.Malformed("item name is required")
	}
	if description == "" {
		return "", "", 0, domain.Malformed("item description is required")
	}

	raw := strings.TrimSpace(in.Quantity)
	if raw == "" {
		return "", "", 0, domain.Malformed("item quantity is required")
	}
	quantity, err = strconv.Atoi(raw)
	if err != nil {
		return "", "", 0, domain.Malformed("item quantity %q is not a number", in.Quantity)
	}
	if quantity < 0 {
		return "", "", 0, domain.Malformed("item quantity %d is negative", quantity)
	}
	if quantity > domain.MaxQuantity {
		return "", "", 0, domain.Malformed("item quantity %d exceeds %d", quantity, domain.MaxQuantity)
	}
	return name, description, quantity, nil
}
