package irrigation

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/rpc/irrigationrpc"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

// GrpcHandler implementa IrrigationService sopra il Service.
type GrpcHandler struct {
	irrigationrpc.UnimplementedIrrigationServer

	svc    *Service
	logger *zap.Logger
}

var _ irrigationrpc.IrrigationServer = (*GrpcHandler)(nil)

func NewGrpcHandler(svc *Service, logger *zap.Logger) *GrpcHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcHandler{svc: svc, logger: logger}
}

// toStatus maps façade errors onto gRPC codes.
func (h *GrpcHandler) toStatus(method string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

func (h *GrpcHandler) PushReading(ctx context.Context, r *messages.Reading) (*messages.PumpDecision, error) {
	if r == nil {
		return nil, status.Error(codes.InvalidArgument, "empty reading")
	}
	d, err := h.svc.PushReading(ctx, *r)
	if err != nil {
		return nil, h.toStatus("PushReading", err)
	}
	return &d, nil
}

func (h *GrpcHandler) GetLatest(ctx context.Context, req *irrigationrpc.DeviceRequest) (*irrigationrpc.LatestResponse, error) {
	r, err := h.svc.GetLatest(ctx, req.Device)
	if err != nil {
		return nil, h.toStatus("GetLatest", err)
	}
	return &irrigationrpc.LatestResponse{Reading: r}, nil
}

func (h *GrpcHandler) GetHistory(ctx context.Context, req *irrigationrpc.HistoryRequest) (*irrigationrpc.ReadingsResponse, error) {
	rs, err := h.svc.GetHistory(ctx, req.Device, req.From, req.To, req.Limit)
	if err != nil {
		return nil, h.toStatus("GetHistory", err)
	}
	return &irrigationrpc.ReadingsResponse{Readings: rs}, nil
}

func (h *GrpcHandler) GetMode(ctx context.Context, req *irrigationrpc.DeviceRequest) (*irrigationrpc.ModeResponse, error) {
	m, err := h.svc.GetMode(ctx, req.Device)
	if err != nil {
		return nil, h.toStatus("GetMode", err)
	}
	return &irrigationrpc.ModeResponse{Mode: m}, nil
}

func (h *GrpcHandler) SetMode(ctx context.Context, req *irrigationrpc.SetModeRequest) (*irrigationrpc.ModeResponse, error) {
	m, err := h.svc.SetMode(ctx, req.Device, req.Mode)
	if err != nil {
		return nil, h.toStatus("SetMode", err)
	}
	return &irrigationrpc.ModeResponse{Mode: m}, nil
}

func (h *GrpcHandler) GetManualPump(ctx context.Context, req *irrigationrpc.DeviceRequest) (*irrigationrpc.PumpResponse, error) {
	on, err := h.svc.GetManualPump(ctx, req.Device)
	if err != nil {
		return nil, h.toStatus("GetManualPump", err)
	}
	return &irrigationrpc.PumpResponse{On: on}, nil
}

func (h *GrpcHandler) SetManualPump(ctx context.Context, req *irrigationrpc.SetManualPumpRequest) (*irrigationrpc.PumpResponse, error) {
	on, err := h.svc.SetManualPump(ctx, req.Device, req.On)
	if err != nil {
		return nil, h.toStatus("SetManualPump", err)
	}
	return &irrigationrpc.PumpResponse{On: on}, nil
}

func (h *GrpcHandler) GetAlerts(ctx context.Context, req *irrigationrpc.AlertsRequest) (*irrigationrpc.AlertsResponse, error) {
	as, err := h.svc.GetAlerts(ctx, req.Device, req.Since, req.Limit)
	if err != nil {
		return nil, h.toStatus("GetAlerts", err)
	}
	if as == nil {
		as = []entities.Alert{}
	}
	return &irrigationrpc.AlertsResponse{Alerts: as}, nil
}

func (h *GrpcHandler) ListDevices(ctx context.Context, _ *irrigationrpc.Empty) (*irrigationrpc.DevicesResponse, error) {
	ds, err := h.svc.ListDevices(ctx)
	if err != nil {
		return nil, h.toStatus("ListDevices", err)
	}
	return &irrigationrpc.DevicesResponse{Devices: ds}, nil
}

func (h *GrpcHandler) GetStatus(ctx context.Context, req *irrigationrpc.StatusRequest) (*entities.DeviceStatus, error) {
	st, err := h.svc.GetStatus(ctx, req.Device, req.OfflineSec)
	if err != nil {
		return nil, h.toStatus("GetStatus", err)
	}
	return &st, nil
}

func (h *GrpcHandler) ListStatus(ctx context.Context, req *irrigationrpc.StatusRequest) (*irrigationrpc.StatusesResponse, error) {
	sts, err := h.svc.ListStatus(ctx, req.OfflineSec)
	if err != nil {
		return nil, h.toStatus("ListStatus", err)
	}
	return &irrigationrpc.StatusesResponse{Statuses: sts}, nil
}

func (h *GrpcHandler) GetSummary(ctx context.Context, req *irrigationrpc.SummaryRequest) (*messages.DeviceSummary, error) {
	sum, err := h.svc.GetSummary(ctx, req.Device, req.OfflineSec, req.Since, req.AlertLimit)
	if err != nil {
		return nil, h.toStatus("GetSummary", err)
	}
	return &sum, nil
}

func (h *GrpcHandler) ListSummaries(ctx context.Context, req *irrigationrpc.SummaryRequest) (*irrigationrpc.SummariesResponse, error) {
	rows, err := h.svc.ListSummaries(ctx, req.OfflineSec, req.Since)
	if err != nil {
		return nil, h.toStatus("ListSummaries", err)
	}
	return &irrigationrpc.SummariesResponse{Rows: rows}, nil
}
