package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

// Mock item and shipment store with the same conditional commit semantics as the SQL store
type mockStore struct {
	mu        sync.Mutex
	items     map[uuid.UUID]domain.Item
	shipments []domain.Shipment

	findErr   error
	listErr   error
	commitErr error

	findCalls int
	listCalls int

	// beforeCommit runs at the start of CommitShipment, outside the lock
	beforeCommit func(ctx context.Context)
}

func newMockStore(items ...domain.Item) *mockStore {
	m := &mockStore{items: make(map[uuid.UUID]domain.Item)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func newItem(name string, quantity int) domain.Item {
	return domain.Item{
		ID:          uuid.New(),
		Name:        name,
		Description: name + " description",
		Quantity:    quantity,
	}
}

func (m *mockStore) quantity(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Quantity
}

func (m *mockStore) setItem(item domain.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *mockStore) shipmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shipments)
}

func (m *mockStore) FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	found := make(map[uuid.UUID]domain.Item)
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			found[id] = it
		}
	}
	return found, nil
}

func (m *mockStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	items := make([]domain.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	return items, nil
}

func (m *mockStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, &domain.ItemNotFoundError{ItemID: id}
	}
	return &it, nil
}

func (m *mockStore) CreateItem(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *mockStore) UpdateItem(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[item.ID]
	if !ok {
		return &domain.ItemNotFoundError{ItemID: item.ID}
	}
	if current.Version != item.Version {
		return domain.ErrCommitConflict
	}
	item.Version++
	m.items[item.ID] = item
	return nil
}

func (m *mockStore) DeleteItem(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return &domain.ItemNotFoundError{ItemID: id}
	}
	delete(m.items, id)
	return nil
}

func (m *mockStore) CommitShipment(ctx context.Context, shipment domain.Shipment, decrements []domain.StockDecrement) error {
	if m.beforeCommit != nil {
		m.beforeCommit(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitErr != nil {
		return m.commitErr
	}
	for _, d := range decrements {
		it := m.items[d.ItemID]
		if it.Version != d.ExpectedVersion || it.Quantity != d.ExpectedQuantity {
			return domain.ErrCommitConflict
		}
	}
	for _, d := range decrements {
		it := m.items[d.ItemID]
		it.Quantity = d.NewQuantity
		it.Version++
		m.items[d.ItemID] = it
	}
	m.shipments = append(m.shipments, shipment)
	return nil
}

func (m *mockStore) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Shipment(nil), m.shipments...), nil
}

func (m *mockStore) GetShipment(ctx context.Context, id uuid.UUID) (*domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sh := range m.shipments {
		if sh.ID == id {
			return &sh, nil
		}
	}
	return nil, domain.ErrShipmentNotFound
}

// Mock IdempotencyRepository
type mockIdempotencyRepo struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{keys: make(map[string]bool)}
}

func (m *mockIdempotencyRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotencyRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

// Mock ShipmentPublisher
type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Shipment
	err       error
}

func (m *mockPublisher) PublishShipmentCommitted(ctx context.Context, shipment domain.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, shipment)
	return nil
}
