package irrigationrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

type IrrigationClient interface {
	PushReading(ctx context.Context, in *messages.Reading, opts ...grpc.CallOption) (*messages.PumpDecision, error)
	GetLatest(ctx context.Context, in *DeviceRequest, opts ...grpc.CallOption) (*LatestResponse, error)
	GetHistory(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*ReadingsResponse, error)
	GetMode(ctx context.Context, in *DeviceRequest, opts ...grpc.CallOption) (*ModeResponse, error)
	SetMode(ctx context.Context, in *SetModeRequest, opts ...grpc.CallOption) (*ModeResponse, error)
	GetManualPump(ctx context.Context, in *DeviceRequest, opts ...grpc.CallOption) (*PumpResponse, error)
	SetManualPump(ctx context.Context, in *SetManualPumpRequest, opts ...grpc.CallOption) (*PumpResponse, error)
	GetAlerts(ctx context.Context, in *AlertsRequest, opts ...grpc.CallOption) (*AlertsResponse, error)
	ListDevices(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*DevicesResponse, error)
	GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*entities.DeviceStatus, error)
	ListStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusesResponse, error)
	GetSummary(ctx context.Context, in *SummaryRequest, opts ...grpc.CallOption) (*messages.DeviceSummary, error)
	ListSummaries(ctx context.Context, in *SummaryRequest, opts ...grpc.CallOption) (*SummariesResponse, error)
}

type irrigationClient struct {
	cc grpc.ClientConnInterface
}

func NewIrrigationClient(cc grpc.ClientConnInterface) IrrigationClient {
	return &irrigationClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *irrigationClient) PushReading(ctx context.Context, in *messages.Reading, opts ...grpc.CallOption) (*messages.PumpDecision, error) {
	return invoke[messages.PumpDecision](ctx, c.cc, "PushReading", in, opts)
}

func (c *irrigationClient) GetLatest(ctx context.Context, in *DeviceRequest, opts ...grpc.CallOption) (*LatestResponse, error) {
	return invoke[LatestResponse](ctx, c.cc, "GetLatest", in, opts)
}

func (c *irrigationClient) GetHistory(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*ReadingsResponse, error) {
	return invoke[ReadingsResponse](ctx, c.cc, "GetHistory", in, opts)
}

func (c *irrigationClient) GetMode(ctx context.Context, in *DeviceRequest, opts ...grpc.CallOption) (*ModeResponse, error) {
	return invoke[ModeResponse](ctx, c.cc, "GetMode", in, opts)
}

func (c *irrigationClient) SetMode(ctx context.Context, in *SetModeRequest, opts ...grpc.CallOption) (*ModeResponse, error) {
	return invoke[ModeResponse](ctx, c.cc, "SetMode", in, opts)
}

func (c *irrigationClient) GetManualPump(ctx context.Context, in *DeviceRequest, opts ...grpc.CallOption) (*PumpResponse, error) {
	return invoke[PumpResponse](ctx, c.cc, "GetManualPump", in, opts)
}

func (c *irrigationClient) SetManualPump(ctx context.Context, in *SetManualPumpRequest, opts ...grpc.CallOption) (*PumpResponse, error) {
	return invoke[PumpResponse](ctx, c.cc, "SetManualPump", in, opts)
}

func (c *irrigationClient) GetAlerts(ctx context.Context, in *AlertsRequest, opts ...grpc.CallOption) (*AlertsResponse, error) {
	return invoke[AlertsResponse](ctx, c.cc, "GetAlerts", in, opts)
}

func (c *irrigationClient) ListDevices(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*DevicesResponse, error) {
	return invoke[DevicesResponse](ctx, c.cc, "ListDevices", in, opts)
}

func (c *irrigationClient) GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*entities.DeviceStatus, error) {
	return invoke[entities.DeviceStatus](ctx, c.cc, "GetStatus", in, opts)
}

func (c *irrigationClient) ListStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusesResponse, error) {
	return invoke[StatusesResponse](ctx, c.cc, "ListStatus", in, opts)
}

func (c *irrigationClient) GetSummary(ctx context.Context, in *SummaryRequest, opts ...grpc.CallOption) (*messages.DeviceSummary, error) {
	return invoke[messages.DeviceSummary](ctx, c.cc, "GetSummary", in, opts)
}

func (c *irrigationClient) ListSummaries(ctx context.Context, in *SummaryRequest, opts ...grpc.CallOption) (*SummariesResponse, error) {
	return invoke[SummariesResponse](ctx, c.cc, "ListSummaries", in, opts)
}
