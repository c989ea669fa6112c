package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/stock-shipments/internal/adapter/storage"
	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	storeTimeout  = 5 * time.Second
)

func main() {
	ctx := context.Background()

	// DB_DRIVER and DB_DSN point the run at a real server; default is a throwaway SQLite file
	driverName := os.Getenv("DB_DRIVER")
	dsn := os.Getenv("DB_DSN")
	if driverName == "" {
		dir, err := os.MkdirTemp("", "stress")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create temp dir")
		}
		defer os.RemoveAll(dir)
		driverName = storage.DriverSQLite
		dsn = filepath.Join(dir, "stress.db") + "?_pragma=busy_timeout(5000)"
	}

	db, err := storage.Open(ctx, driverName, dsn, storeTimeout)
	if err != nil {
		log.Fatal().Err(err).Str("driver", driverName).Msg("failed to connect database")
	}
	defer db.Close()

	store := storage.NewSQLStore(db, driverName)
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	cache := service.NewItemCache(store, nil)
	items := service.NewItemService(store, cache)
	shipments := service.NewShipmentService(store, store, cache)

	item, err := items.CreateItem(ctx, service.ItemInput{
		Name:        "stress-item",
		Description: "stress test item",
		Quantity:    fmt.Sprint(initialStock),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed item")
	}
	defer items.DeleteItem(ctx, item.ID.String())

	// Counters
	var successCount atomic.Int32
	var rejectedCount atomic.Int32
	var conflictCount atomic.Int32

	// Spawn concurrent requests; each retries on a conflict the way a client would
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := shipments.AddShipment(ctx, service.ShipmentRequest{
					ItemIDs:    []string{item.ID.String()},
					Quantities: []string{"1"},
					Price:      "1.00",
				})
				switch {
				case err == nil:
					successCount.Add(1)
				case errors.Is(err, domain.ErrCommitConflict):
					conflictCount.Add(1)
					continue
				case errors.Is(err, domain.ErrInsufficientStock):
					rejectedCount.Add(1)
				default:
					log.Error().Err(err).Msg("unexpected shipment error")
					rejectedCount.Add(1)
				}
				return
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", driverName)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Shipped:          %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Conflict Retries: %d\n", conflictCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && rejected == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d shipments committed, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d shipped/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, rejected)
	}

	// Verify final stock
	final, err := store.GetItem(ctx, item.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read final stock")
	}
	fmt.Printf("Final Stock: %d\n", final.Quantity)

	if final.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Quantity)
	}
}
