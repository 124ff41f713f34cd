// Package irrigationrpc is the gRPC contract between the irrigation core and
// its callers (device gateway, dashboard). Payloads are the model structs
// encoded with the JSON codec.
package irrigationrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

const ServiceName = "irrigation.IrrigationService"

// IrrigationServer is implemented by the core.
type IrrigationServer interface {
	PushReading(context.Context, *messages.Reading) (*messages.PumpDecision, error)
	GetLatest(context.Context, *DeviceRequest) (*LatestResponse, error)
	GetHistory(context.Context, *HistoryRequest) (*ReadingsResponse, error)
	GetMode(context.Context, *DeviceRequest) (*ModeResponse, error)
	SetMode(context.Context, *SetModeRequest) (*ModeResponse, error)
	GetManualPump(context.Context, *DeviceRequest) (*PumpResponse, error)
	SetManualPump(context.Context, *SetManualPumpRequest) (*PumpResponse, error)
	GetAlerts(context.Context, *AlertsRequest) (*AlertsResponse, error)
	ListDevices(context.Context, *Empty) (*DevicesResponse, error)
	GetStatus(context.Context, *StatusRequest) (*entities.DeviceStatus, error)
	ListStatus(context.Context, *StatusRequest) (*StatusesResponse, error)
	GetSummary(context.Context, *SummaryRequest) (*messages.DeviceSummary, error)
	ListSummaries(context.Context, *SummaryRequest) (*SummariesResponse, error)
}

// UnimplementedIrrigationServer can be embedded for partial implementations.
type UnimplementedIrrigationServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedIrrigationServer) PushReading(context.Context, *messages.Reading) (*messages.PumpDecision, error) {
	return nil, unimplemented("PushReading")
}
func (UnimplementedIrrigationServer) GetLatest(context.Context, *DeviceRequest) (*LatestResponse, error) {
	return nil, unimplemented("GetLatest")
}
func (UnimplementedIrrigationServer) GetHistory(context.Context, *HistoryRequest) (*ReadingsResponse, error) {
	return nil, unimplemented("GetHistory")
}
func (UnimplementedIrrigationServer) GetMode(context.Context, *DeviceRequest) (*ModeResponse, error) {
	return nil, unimplemented("GetMode")
}
func (UnimplementedIrrigationServer) SetMode(context.Context, *SetModeRequest) (*ModeResponse, error) {
	return nil, unimplemented("SetMode")
}
func (UnimplementedIrrigationServer) GetManualPump(context.Context, *DeviceRequest) (*PumpResponse, error) {
	return nil, unimplemented("GetManualPump")
}
func (UnimplementedIrrigationServer) SetManualPump(context.Context, *SetManualPumpRequest) (*PumpResponse, error) {
	return nil, unimplemented("SetManualPump")
}
func (UnimplementedIrrigationServer) GetAlerts(context.Context, *AlertsRequest) (*AlertsResponse, error) {
	return nil, unimplemented("GetAlerts")
}
func (UnimplementedIrrigationServer) ListDevices(context.Context, *Empty) (*DevicesResponse, error) {
	return nil, unimplemented("ListDevices")
}
func (UnimplementedIrrigationServer) GetStatus(context.Context, *StatusRequest) (*entities.DeviceStatus, error) {
	return nil, unimplemented("GetStatus")
}
func (UnimplementedIrrigationServer) ListStatus(context.Context, *StatusRequest) (*StatusesResponse, error) {
	return nil, unimplemented("ListStatus")
}
func (UnimplementedIrrigationServer) GetSummary(context.Context, *SummaryRequest) (*messages.DeviceSummary, error) {
	return nil, unimplemented("GetSummary")
}
func (UnimplementedIrrigationServer) ListSummaries(context.Context, *SummaryRequest) (*SummariesResponse, error) {
	return nil, unimplemented("ListSummaries")
}

// unary adapts a typed server method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(IrrigationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IrrigationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IrrigationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IrrigationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PushReading", IrrigationServer.PushReading),
		unary("GetLatest", IrrigationServer.GetLatest),
		unary("GetHistory", IrrigationServer.GetHistory),
		unary("GetMode", IrrigationServer.GetMode),
		unary("SetMode", IrrigationServer.SetMode),
		unary("GetManualPump", IrrigationServer.GetManualPump),
		unary("SetManualPump", IrrigationServer.SetManualPump),
		unary("GetAlerts", IrrigationServer.GetAlerts),
		unary("ListDevices", IrrigationServer.ListDevices),
		unary("GetStatus", IrrigationServer.GetStatus),
		unary("ListStatus", IrrigationServer.ListStatus),
		unary("GetSummary", IrrigationServer.GetSummary),
		unary("ListSummaries", IrrigationServer.ListSummaries),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "irrigationrpc",
}

func RegisterIrrigationServer(s grpc.ServiceRegistrar, srv IrrigationServer) {
	s.RegisterService(&ServiceDesc, srv)
}
