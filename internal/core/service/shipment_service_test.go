package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rl1809/stock-shipments/internal/adapter/storage"
	"github.com/rl1809/stock-shipments/internal/core/domain"
)

func newTestService(store *mockStore, opts ...Option) *ShipmentService {
	cache := NewItemCache(store, nil)
	return NewShipmentService(store, store, cache, opts...)
}

func request(price string, pairs ...any) ShipmentRequest {
	req := ShipmentRequest{Price: price}
	for i := 0; i < len(pairs); i += 2 {
		req.ItemIDs = append(req.ItemIDs, pairs[i].(uuid.UUID).String())
		req.Quantities = append(req.Quantities, pairs[i+1].(string))
	}
	return req
}

func TestAddShipment_Success(t *testing.T) {
	a := newItem("item-a", 10)
	store := newMockStore(a)
	svc := newTestService(store)

	shipment, err := svc.AddShipment(context.Background(), request("40.00", a.ID, "4"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if store.quantity(a.ID) != 6 {
		t.Errorf("expected quantity 6, got %d", store.quantity(a.ID))
	}
	if len(shipment.Items) != 1 {
		t.Fatalf("expected 1 shipment item, got %d", len(shipment.Items))
	}
	got := shipment.Items[0]
	if got.ItemID != a.ID || got.Quantity != 4 || got.Name != "item-a" {
		t.Errorf("unexpected shipment item: %+v", got)
	}
	if shipment.TotalPrice.String() != "40" {
		t.Errorf("expected price 40, got %s", shipment.TotalPrice)
	}
	if shipment.ID == uuid.Nil {
		t.Error("expected non-empty shipment ID")
	}
	if shipment.CreatedAt.IsZero() {
		t.Error("expected creation date")
	}
	if store.shipmentCount() != 1 {
		t.Errorf("expected 1 stored shipment, got %d", store.shipmentCount())
	}
}

func TestAddShipment_UnitsConserved(t *testing.T) {
	a := newItem("a", 10)
	b := newItem("b", 7)
	c := newItem("c", 1)
	store := newMockStore(a, b, c)
	svc := newTestService(store)

	before := store.quantity(a.ID) + store.quantity(b.ID) + store.quantity(c.ID)

	shipment, err := svc.AddShipment(context.Background(),
		request("", a.ID, "3", b.ID, "7", c.ID, "0", a.ID, "2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := store.quantity(a.ID) + store.quantity(b.ID) + store.quantity(c.ID)
	if shipment.TotalQuantity() != before-after {
		t.Errorf("shipped %d units but stock fell by %d", shipment.TotalQuantity(), before-after)
	}
	if shipment.TotalQuantity() != 12 {
		t.Errorf("expected 12 units, got %d", shipment.TotalQuantity())
	}
}

func TestAddShipment_UnknownItem(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	svc := newTestService(store)

	_, err := svc.AddShipment(context.Background(), request("", a.ID, "1", uuid.New(), "1"))
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}

	if store.quantity(a.ID) != 10 {
		t.Errorf("expected quantity 10, got %d", store.quantity(a.ID))
	}
	if store.shipmentCount() != 0 {
		t.Errorf("expected no shipments, got %d", store.shipmentCount())
	}
}

func TestAddShipment_InsufficientStock(t *testing.T) {
	a := newItem("a", 3)
	b := newItem("b", 10)
	store := newMockStore(a, b)
	svc := newTestService(store)

	_, err := svc.AddShipment(context.Background(), request("", b.ID, "2", a.ID, "5"))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	if store.quantity(a.ID) != 3 || store.quantity(b.ID) != 10 {
		t.Errorf("expected stock untouched, got a=%d b=%d", store.quantity(a.ID), store.quantity(b.ID))
	}
}

func TestAddShipment_DropsNonPositiveLines(t *testing.T) {
	a := newItem("a", 10)
	b := newItem("b", 10)
	store := newMockStore(a, b)
	svc := newTestService(store)

	shipment, err := svc.AddShipment(context.Background(), request("", a.ID, "2", b.ID, "0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(shipment.Items) != 1 || shipment.Items[0].ItemID != a.ID {
		t.Errorf("expected only item a in shipment, got %+v", shipment.Items)
	}
	if store.quantity(b.ID) != 10 {
		t.Errorf("expected b untouched, got %d", store.quantity(b.ID))
	}
}

func TestAddShipment_NoPositiveLines(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	svc := newTestService(store)

	_, err := svc.AddShipment(context.Background(), request("", a.ID, "0"))
	if !errors.Is(err, domain.ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got: %v", err)
	}
	if store.shipmentCount() != 0 {
		t.Errorf("expected no shipments, got %d", store.shipmentCount())
	}
	if store.findCalls != 0 {
		t.Errorf("expected no store reads, got %d", store.findCalls)
	}
}

func TestAddShipment_MalformedRequest(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	_, err := svc.AddShipment(context.Background(), ShipmentRequest{
		ItemIDs:    []string{uuid.NewString(), uuid.NewString()},
		Quantities: []string{"1"},
	})
	if !errors.Is(err, domain.ErrMalformedRequest) {
		t.Errorf("expected ErrMalformedRequest, got: %v", err)
	}
}

func TestAddShipment_SnapshotSurvivesRename(t *testing.T) {
	a := newItem("original name", 10)
	store := newMockStore(a)
	svc := newTestService(store)
	items := NewItemService(store, NewItemCache(store, nil))

	shipment, err := svc.AddShipment(context.Background(), request("", a.ID, "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = items.UpdateItem(context.Background(), a.ID.String(), ItemInput{
		Name: "renamed", Description: "changed", Quantity: "9",
	})
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	stored, err := svc.GetShipment(context.Background(), shipment.ID.String())
	if err != nil {
		t.Fatalf("GetShipment failed: %v", err)
	}
	if stored.Items[0].Name != "original name" || stored.Items[0].Description != "original name description" {
		t.Errorf("shipment snapshot changed: %+v", stored.Items[0])
	}
}

func TestAddShipment_ConflictWhenStockChangesBeforeCommit(t *testing.T) {
	a := newItem("a", 5)
	store := newMockStore(a)
	svc := newTestService(store)

	// Another writer takes 2 units between reconciliation and commit
	store.beforeCommit = func(ctx context.Context) {
		changed := a
		changed.Quantity = 3
		changed.Version = 1
		store.setItem(changed)
	}

	_, err := svc.AddShipment(context.Background(), request("", a.ID, "5"))
	if !errors.Is(err, domain.ErrCommitConflict) {
		t.Fatalf("expected ErrCommitConflict, got: %v", err)
	}
	if store.quantity(a.ID) != 3 {
		t.Errorf("expected quantity 3, got %d", store.quantity(a.ID))
	}
	if store.shipmentCount() != 0 {
		t.Errorf("expected no shipments, got %d", store.shipmentCount())
	}
}

func TestAddShipment_ConcurrentRequestsForAllStock(t *testing.T) {
	a := newItem("a", 5)
	store := newMockStore(a)
	svc := newTestService(store)

	// Both requests finish reconciliation before either commits
	var reconciled sync.WaitGroup
	reconciled.Add(2)
	store.beforeCommit = func(ctx context.Context) {
		reconciled.Done()
		reconciled.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddShipment(context.Background(), request("", a.ID, "5"))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrCommitConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 || conflicts != 1 {
		t.Errorf("expected 1 success and 1 conflict, got %d and %d", successes, conflicts)
	}
	if store.quantity(a.ID) != 0 {
		t.Errorf("expected quantity 0, got %d", store.quantity(a.ID))
	}
	if store.shipmentCount() != 1 {
		t.Errorf("expected 1 shipment, got %d", store.shipmentCount())
	}
}

func TestAddShipment_StoreUnavailable(t *testing.T) {
	a := newItem("a", 5)
	store := newMockStore(a)
	store.findErr = errors.New("dial tcp: connection refused")
	svc := newTestService(store)

	_, err := svc.AddShipment(context.Background(), request("", a.ID, "1"))
	if err == nil {
		t.Fatal("expected error")
	}

	store.findErr = context.DeadlineExceeded
	_, err = svc.AddShipment(context.Background(), request("", a.ID, "1"))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable for a deadline, got: %v", err)
	}
	if store.quantity(a.ID) != 5 {
		t.Errorf("expected quantity 5, got %d", store.quantity(a.ID))
	}
}

func TestAddShipment_CommitOutlivesCallerCancellation(t *testing.T) {
	a := newItem("a", 5)
	store := newMockStore(a)
	svc := newTestService(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.beforeCommit = func(context.Context) { cancel() }

	if _, err := svc.AddShipment(ctx, request("", a.ID, "2")); err != nil {
		t.Fatalf("expected commit to finish, got: %v", err)
	}
	if store.quantity(a.ID) != 3 {
		t.Errorf("expected quantity 3, got %d", store.quantity(a.ID))
	}
}

func TestAddShipment_CommitTimeout(t *testing.T) {
	a := newItem("a", 5)
	store := newMockStore(a)
	svc := newTestService(store, WithTimeouts(time.Second, 20*time.Millisecond))

	store.beforeCommit = func(ctx context.Context) { <-ctx.Done() }

	_, err := svc.AddShipment(context.Background(), request("", a.ID, "2"))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got: %v", err)
	}
	if store.quantity(a.ID) != 5 {
		t.Errorf("expected quantity 5, got %d", store.quantity(a.ID))
	}
}

func TestAddShipment_DuplicateRequest(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	idem := newMockIdempotencyRepo()
	svc := newTestService(store, WithIdempotency(idem))

	req := request("", a.ID, "1")
	req.IdempotencyKey = "req-1"

	// First request
	if _, err := svc.AddShipment(context.Background(), req); err != nil {
		t.Fatalf("first shipment failed: %v", err)
	}

	// Duplicate request with same key
	_, err := svc.AddShipment(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Stock should only be decremented once
	if store.quantity(a.ID) != 9 {
		t.Errorf("expected quantity 9, got %d", store.quantity(a.ID))
	}
}

func TestAddShipment_FailedRequestReleasesIdempotencyKey(t *testing.T) {
	a := newItem("a", 1)
	store := newMockStore(a)
	idem := newMockIdempotencyRepo()
	svc := newTestService(store, WithIdempotency(idem))

	req := request("", a.ID, "2")
	req.IdempotencyKey = "req-2"

	_, err := svc.AddShipment(context.Background(), req)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	if len(idem.released) != 1 || idem.released[0] != "req-2" {
		t.Errorf("expected key to be released, got %v", idem.released)
	}

	// Retry with the same key once stock is back
	restocked := a
	restocked.Quantity = 5
	store.setItem(restocked)
	if _, err := svc.AddShipment(context.Background(), req); err != nil {
		t.Errorf("retry failed: %v", err)
	}
}

func TestAddShipment_PublishesCommittedShipment(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	publisher := &mockPublisher{}
	svc := newTestService(store, WithPublisher(publisher))

	shipment, err := svc.AddShipment(context.Background(), request("", a.ID, "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AddShipment(context.Background(), request("", a.ID, "100")); err == nil {
		t.Fatal("expected rejection")
	}

	if len(publisher.published) != 1 || publisher.published[0].ID != shipment.ID {
		t.Errorf("expected only the committed shipment to be published, got %+v", publisher.published)
	}
}

func TestAddShipment_PublishFailureKeepsCommit(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	publisher := &mockPublisher{err: errors.New("broker down")}
	svc := newTestService(store, WithPublisher(publisher))

	if _, err := svc.AddShipment(context.Background(), request("", a.ID, "1")); err != nil {
		t.Fatalf("expected success despite publish failure, got: %v", err)
	}
	if store.quantity(a.ID) != 9 {
		t.Errorf("expected quantity 9, got %d", store.quantity(a.ID))
	}
}

func TestAddShipment_InvalidatesItemCache(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	svc := newTestService(store)

	items, err := svc.AvailableItems(context.Background())
	if err != nil || items[0].Quantity != 10 {
		t.Fatalf("unexpected items %+v, err %v", items, err)
	}

	if _, err := svc.AddShipment(context.Background(), request("", a.ID, "4")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err = svc.AvailableItems(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].Quantity != 6 {
		t.Errorf("expected refreshed quantity 6, got %d", items[0].Quantity)
	}
	if store.listCalls != 2 {
		t.Errorf("expected 2 cache loads, got %d", store.listCalls)
	}
}

func TestAddShipment_Metrics(t *testing.T) {
	a := newItem("a", 10)
	store := newMockStore(a)
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := newTestService(store, WithMetrics(metrics))

	svc.AddShipment(context.Background(), request("", a.ID, "4"))
	svc.AddShipment(context.Background(), request("", a.ID, "40"))
	svc.AddShipment(context.Background(), request("", uuid.New(), "1"))

	if got := testutil.ToFloat64(metrics.shipments.WithLabelValues(resultCommitted)); got != 1 {
		t.Errorf("expected 1 committed, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.shipments.WithLabelValues(resultInsufficientStock)); got != 1 {
		t.Errorf("expected 1 insufficient stock, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.shipments.WithLabelValues(resultItemNotFound)); got != 1 {
		t.Errorf("expected 1 item not found, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.shippedUnits); got != 4 {
		t.Errorf("expected 4 shipped units, got %v", got)
	}
}

func TestGetShipment_InvalidID(t *testing.T) {
	svc := newTestService(newMockStore())

	_, err := svc.GetShipment(context.Background(), "nope")
	if !errors.Is(err, domain.ErrMalformedRequest) {
		t.Errorf("expected ErrMalformedRequest, got: %v", err)
	}
}

// Exercises the real conditional update: concurrent one-unit shipments
// against a SQLite store never oversell.
func TestAddShipment_ConcurrentAgainstSQLStore(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "svc.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store := storage.NewSQLStore(db, storage.DriverSQLite)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cache := NewItemCache(store, nil)
	items := NewItemService(store, cache)
	svc := NewShipmentService(store, store, cache)

	item, err := items.CreateItem(ctx, ItemInput{Name: "widget", Description: "blue", Quantity: "20"})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := svc.AddShipment(ctx, request("1", item.ID, "1"))
				switch {
				case err == nil:
					successCount.Add(1)
					return
				case errors.Is(err, domain.ErrCommitConflict):
					continue
				case errors.Is(err, domain.ErrInsufficientStock):
					return
				default:
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", got.Quantity)
	}

	shipments, err := svc.ListShipments(ctx)
	if err != nil {
		t.Fatalf("ListShipments failed: %v", err)
	}
	if len(shipments) != initialStock {
		t.Errorf("expected %d shipments, got %d", initialStock, len(shipments))
	}
}

func TestAddShipment_HugeRepeatedQuantitiesAgainstSQLStore(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "svc.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store := storage.NewSQLStore(db, storage.DriverSQLite)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cache := NewItemCache(store, nil)
	items := NewItemService(store, cache)
	svc := NewShipmentService(store, store, cache)

	item, err := items.CreateItem(ctx, ItemInput{Name: "widget", Description: "blue", Quantity: "10"})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	huge := "4611686018427387904"
	_, err = svc.AddShipment(ctx, request("1", item.ID, huge, item.ID, huge, item.ID, huge))
	if !errors.Is(err, domain.ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got: %v", err)
	}

	// Lines that each fit but sum past the column range
	largest := "2147483647"
	_, err = svc.AddShipment(ctx, request("1", item.ID, largest, item.ID, largest, item.ID, largest))
	if !errors.Is(err, domain.ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest for merged lines, got: %v", err)
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Quantity != 10 {
		t.Errorf("expected stock 10, got %d", got.Quantity)
	}

	shipments, err := svc.ListShipments(ctx)
	if err != nil {
		t.Fatalf("ListShipments failed: %v", err)
	}
	if len(shipments) != 0 {
		t.Errorf("expected no shipments, got %d", len(shipments))
	}
}
