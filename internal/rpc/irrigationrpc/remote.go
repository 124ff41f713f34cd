package irrigationrpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/resilient"
)

type RemoteConfig struct {
	Target         string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	DialOptions    []grpc.DialOption

	OnReconnect func()
	OnRetry     func()
}

// Remote is the caller-side view of the core: every method goes through a
// resilient.Client, so a dropped or hung connection costs one reconnect and
// one retry before the error reaches the caller. CallTimeout bounds each
// attempt, not the pair.
type Remote struct {
	client *resilient.Client[IrrigationClient]
}

func Dial(cfg RemoteConfig, logger *zap.Logger) *Remote {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	h := resilient.NewGRPCHandle(cfg.Target, NewIrrigationClient, cfg.ConnectTimeout, cfg.DialOptions...)
	c := resilient.New[IrrigationClient](h, resilient.Config{
		Classify:       resilient.GRPCClassifier,
		Logger:         logger,
		Name:           "irrigation-core",
		AttemptTimeout: cfg.CallTimeout,
		OnReconnect:    cfg.OnReconnect,
		OnRetry:        cfg.OnRetry,
	})
	return NewRemote(c)
}

func NewRemote(c *resilient.Client[IrrigationClient]) *Remote {
	return &Remote{client: c}
}

func (r *Remote) Close() { r.client.Close() }

func call[Resp any](ctx context.Context, r *Remote, op func(context.Context, IrrigationClient) (*Resp, error)) (*Resp, error) {
	return resilient.Call(ctx, r.client, op)
}

func (r *Remote) PushReading(ctx context.Context, rd messages.Reading) (messages.PumpDecision, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*messages.PumpDecision, error) {
		return c.PushReading(ctx, &rd)
	})
	if err != nil {
		return messages.PumpDecision{}, err
	}
	return *out, nil
}

func (r *Remote) GetLatest(ctx context.Context, device string) (*messages.Reading, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*LatestResponse, error) {
		return c.GetLatest(ctx, &DeviceRequest{Device: device})
	})
	if err != nil {
		return nil, err
	}
	return out.Reading, nil
}

func (r *Remote) GetHistory(ctx context.Context, device string, from, to time.Time, limit int) ([]messages.Reading, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*ReadingsResponse, error) {
		return c.GetHistory(ctx, &HistoryRequest{Device: device, From: from, To: to, Limit: limit})
	})
	if err != nil {
		return nil, err
	}
	return out.Readings, nil
}

func (r *Remote) GetMode(ctx context.Context, device string) (entities.Mode, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*ModeResponse, error) {
		return c.GetMode(ctx, &DeviceRequest{Device: device})
	})
	if err != nil {
		return "", err
	}
	return out.Mode, nil
}

func (r *Remote) SetMode(ctx context.Context, device, mode string) (entities.Mode, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*ModeResponse, error) {
		return c.SetMode(ctx, &SetModeRequest{Device: device, Mode: mode})
	})
	if err != nil {
		return "", err
	}
	return out.Mode, nil
}

func (r *Remote) GetManualPump(ctx context.Context, device string) (bool, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*PumpResponse, error) {
		return c.GetManualPump(ctx, &DeviceRequest{Device: device})
	})
	if err != nil {
		return false, err
	}
	return out.On, nil
}

func (r *Remote) SetManualPump(ctx context.Context, device string, on bool) (bool, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*PumpResponse, error) {
		return c.SetManualPump(ctx, &SetManualPumpRequest{Device: device, On: on})
	})
	if err != nil {
		return false, err
	}
	return out.On, nil
}

func (r *Remote) GetAlerts(ctx context.Context, device string, since time.Time, limit int) ([]entities.Alert, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*AlertsResponse, error) {
		return c.GetAlerts(ctx, &AlertsRequest{Device: device, Since: since, Limit: limit})
	})
	if err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

func (r *Remote) ListDevices(ctx context.Context) ([]string, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*DevicesResponse, error) {
		return c.ListDevices(ctx, &Empty{})
	})
	if err != nil {
		return nil, err
	}
	return out.Devices, nil
}

func (r *Remote) GetStatus(ctx context.Context, device string, offlineSec int) (entities.DeviceStatus, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*entities.DeviceStatus, error) {
		return c.GetStatus(ctx, &StatusRequest{Device: device, OfflineSec: offlineSec})
	})
	if err != nil {
		return entities.DeviceStatus{}, err
	}
	return *out, nil
}

func (r *Remote) ListStatus(ctx context.Context, offlineSec int) ([]entities.DeviceStatus, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*StatusesResponse, error) {
		return c.ListStatus(ctx, &StatusRequest{OfflineSec: offlineSec})
	})
	if err != nil {
		return nil, err
	}
	return out.Statuses, nil
}

func (r *Remote) GetSummary(ctx context.Context, device string, offlineSec int, since time.Time, alertLimit int) (messages.DeviceSummary, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*messages.DeviceSummary, error) {
		return c.GetSummary(ctx, &SummaryRequest{Device: device, OfflineSec: offlineSec, Since: since, AlertLimit: alertLimit})
	})
	if err != nil {
		return messages.DeviceSummary{}, err
	}
	return *out, nil
}

func (r *Remote) ListSummaries(ctx context.Context, offlineSec int, since time.Time) ([]messages.SummaryRow, error) {
	out, err := call(ctx, r, func(ctx context.Context, c IrrigationClient) (*SummariesResponse, error) {
		return c.ListSummaries(ctx, &SummaryRequest{OfflineSec: offlineSec, Since: since})
	})
	if err != nil {
		return nil, err
	}
	return out.Rows, nil
}
