package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-shipments/internal/adapter/handler/rpc"
	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/core/service"
)

const idempotencyMetadataKey = "idempotency-key"

type GRPCHandler struct {
	shipments *service.ShipmentService
}

func NewGRPCHandler(shipments *service.ShipmentService) *GRPCHandler {
	return &GRPCHandler{shipments: shipments}
}

func (h *GRPCHandler) CommitShipment(ctx context.Context, req *rpc.CommitShipmentRequest) (*rpc.CommitShipmentResponse, error) {
	key := req.IdempotencyKey
	if key == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(idempotencyMetadataKey); len(values) > 0 {
				key = values[0]
			}
		}
	}

	shipment, err := h.shipments.AddShipment(ctx, service.ShipmentRequest{
		IdempotencyKey: key,
		ItemIDs:        req.ItemIDs,
		Quantities:     req.Quantities,
		Price:          req.TotalPrice,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &rpc.CommitShipmentResponse{Shipment: *shipment}, nil
}

func (h *GRPCHandler) ListShipments(ctx context.Context, _ *rpc.ListShipmentsRequest) (*rpc.ListShipmentsResponse, error) {
	shipments, err := h.shipments.ListShipments(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &rpc.ListShipmentsResponse{Shipments: shipments}, nil
}

func grpcError(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrMalformedRequest):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrShipmentNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrCommitConflict):
		code = codes.Aborted
	case errors.Is(err, domain.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrStoreUnavailable):
		code = codes.Unavailable
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

// UnaryLogger logs every unary call with its status code and duration.
func UnaryLogger(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("rpc")
		return resp, err
	}
}
