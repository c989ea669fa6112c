package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/port"
)

// ShipmentRequest holds the raw request fields: parallel id and quantity
// lists, the client-supplied total price and an optional idempotency key.
type ShipmentRequest struct {
	IdempotencyKey string
	ItemIDs        []string
	Quantities     []string
	Price          string
}

type ShipmentService struct {
	options
	reconciler *Reconciler
	committer  *Committer
	shipments  port.ShipmentRepository
	cache      *ItemCache
}

func NewShipmentService(items port.ItemRepository, shipments port.ShipmentRepository, cache *ItemCache, opts ...Option) *ShipmentService {
	var invalidator Invalidator
	if cache != nil {
		invalidator = cache
	}
	return &ShipmentService{
		options:    newOptions(opts),
		reconciler: NewReconciler(items),
		committer:  NewCommitter(shipments, invalidator),
		shipments:  shipments,
		cache:      cache,
	}
}

// AddShipment validates the request against current stock and commits it.
// Nothing is written unless every line can be shipped.
func (s *ShipmentService) AddShipment(ctx context.Context, req ShipmentRequest) (*domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "ShipmentService.AddShipment")
	defer span.End()

	span.SetAttributes(attribute.Int("shipment.requested_lines", len(req.ItemIDs)))

	shipment, err := s.addShipment(ctx, req)
	result := resultOf(err)
	s.metrics.shipment(result)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		s.logFailure(err, result)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("shipment.id", shipment.ID.String()),
		attribute.Int("shipment.items", len(shipment.Items)),
		attribute.Int("shipment.units", shipment.TotalQuantity()),
	)
	s.logger.Info().
		Str("shipment_id", shipment.ID.String()).
		Int("items", len(shipment.Items)).
		Int("units", shipment.TotalQuantity()).
		Str("total_price", shipment.TotalPrice.String()).
		Msg("shipment committed")
	return shipment, nil
}

func (s *ShipmentService) addShipment(ctx context.Context, req ShipmentRequest) (shipment *domain.Shipment, err error) {
	lines, err := ParseReservationLines(req.ItemIDs, req.Quantities)
	if err != nil {
		return nil, err
	}
	price, err := ParsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.Malformed("no item was requested with a positive quantity")
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		acquired, setErr := s.idempotency.SetIdempotency(ctx, req.IdempotencyKey)
		if setErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", storeErr(setErr))
		}
		if !acquired {
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err != nil {
				s.releaseIdempotency(ctx, req.IdempotencyKey)
			}
		}()
	}

	readCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	reconciled, err := s.reconciler.Reconcile(readCtx, lines)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}

	// Once started, the commit ignores caller cancellation and only stops at its own deadline.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	defer cancel()

	start := time.Now()
	shipment, err = s.committer.Commit(commitCtx, reconciled, price)
	s.metrics.observeCommit(start)
	if err != nil {
		return nil, storeErr(err)
	}
	s.metrics.shipped(shipment.TotalQuantity())

	s.publish(ctx, *shipment)
	return shipment, nil
}

func (s *ShipmentService) publish(ctx context.Context, shipment domain.Shipment) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if err := s.publisher.PublishShipmentCommitted(pubCtx, shipment); err != nil {
		s.logger.Error().Err(err).
			Str("shipment_id", shipment.ID.String()).
			Msg("failed to publish shipment event")
	}
}

func (s *ShipmentService) releaseIdempotency(ctx context.Context, key string) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if err := s.idempotency.ReleaseIdempotency(relCtx, key); err != nil {
		s.logger.Error().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
	}
}

func (s *ShipmentService) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "ShipmentService.ListShipments")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	shipments, err := s.shipments.ListShipments(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr(err)
	}
	return shipments, nil
}

func (s *ShipmentService) GetShipment(ctx context.Context, rawID string) (*domain.Shipment, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, domain.Malformed("shipment id %q is not a valid id", rawID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	shipment, err := s.shipments.GetShipment(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return shipment, nil
}

// AvailableItems lists items for the shipment selection form.
func (s *ShipmentService) AvailableItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.cache.Items(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

func (s *ShipmentService) logFailure(err error, result string) {
	var event *zerolog.Event
	switch result {
	case resultStoreUnavailable, resultError:
		event = s.logger.Error()
	default:
		event = s.logger.Warn()
	}
	event.Err(err).Str("result", result).Msg("shipment rejected")
}

// storeErr reports a deadline hit outside the storage adapter as an
// unavailable store.
func storeErr(err error) error {
	if err == nil || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultCommitted
	case errors.Is(err, domain.ErrMalformedRequest):
		return resultMalformed
	case errors.Is(err, domain.ErrItemNotFound):
		return resultItemNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return resultInsufficientStock
	case errors.Is(err, domain.ErrCommitConflict):
		return resultCommitConflict
	case errors.Is(err, domain.ErrDuplicateRequest):
		return resultDuplicate
	case errors.Is(err, domain.ErrStoreUnavailable):
		return resultStoreUnavailable
	default:
		return resultError
	}
}
