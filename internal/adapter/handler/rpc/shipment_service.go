package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

const (
	ShipmentService_CommitShipment_FullMethodName = "/inventory.v1.ShipmentService/CommitShipment"
	ShipmentService_ListShipments_FullMethodName  = "/inventory.v1.ShipmentService/ListShipments"
)

type CommitShipmentRequest struct {
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
	ItemIDs        []string `json:"item_ids"`
	Quantities     []string `json:"quantities"`
	TotalPrice     string   `json:"total_price,omitempty"`
}

type CommitShipmentResponse struct {
	Shipment domain.Shipment `json:"shipment"`
}

type ListShipmentsRequest struct{}

type ListShipmentsResponse struct {
	Shipments []domain.Shipment `json:"shipments"`
}

type ShipmentServiceServer interface {
	CommitShipment(context.Context, *CommitShipmentRequest) (*CommitShipmentResponse, error)
	ListShipments(context.Context, *ListShipmentsRequest) (*ListShipmentsResponse, error)
}

func RegisterShipmentServiceServer(s grpc.ServiceRegistrar, srv ShipmentServiceServer) {
	s.RegisterService(&ShipmentService_ServiceDesc, srv)
}

func _ShipmentService_CommitShipment_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CommitShipmentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShipmentServiceServer).CommitShipment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ShipmentService_CommitShipment_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShipmentServiceServer).CommitShipment(ctx, req.(*CommitShipmentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ShipmentService_ListShipments_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListShipmentsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShipmentServiceServer).ListShipments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ShipmentService_ListShipments_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShipmentServiceServer).ListShipments(ctx, req.(*ListShipmentsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ShipmentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "inventory.v1.ShipmentService",
	HandlerType: (*ShipmentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CommitShipment",
			Handler:    _ShipmentService_CommitShipment_Handler,
		},
		{
			MethodName: "ListShipments",
			Handler:    _ShipmentService_ListShipments_Handler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

type ShipmentServiceClient interface {
	CommitShipment(ctx context.Context, in *CommitShipmentRequest, opts ...grpc.CallOption) (*CommitShipmentResponse, error)
	ListShipments(ctx context.Context, in *ListShipmentsRequest, opts ...grpc.CallOption) (*ListShipmentsResponse, error)
}

type shipmentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewShipmentServiceClient returns a client that always calls with the JSON codec.
func NewShipmentServiceClient(cc grpc.ClientConnInterface) ShipmentServiceClient {
	return &shipmentServiceClient{cc}
}

func (c *shipmentServiceClient) CommitShipment(ctx context.Context, in *CommitShipmentRequest, opts ...grpc.CallOption) (*CommitShipmentResponse, error) {
	out := new(CommitShipmentResponse)
	err := c.cc.Invoke(ctx, ShipmentService_CommitShipment_FullMethodName, in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *shipmentServiceClient) ListShipments(ctx context.Context, in *ListShipmentsRequest, opts ...grpc.CallOption) (*ListShipmentsResponse, error) {
	out := new(ListShipmentsResponse)
	err := c.cc.Invoke(ctx, ShipmentService_ListShipments_FullMethodName, in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
