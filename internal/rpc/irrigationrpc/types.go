package irrigationrpc

import (
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

type Empty struct{}

type DeviceRequest struct {
	Device string `json:"device"`
}

type HistoryRequest struct {
	Device string    `json:"device"`
	From   time.Time `json:"fromUtc"`
	To     time.Time `json:"toUtc"`
	Limit  int       `json:"limit"`
}

type SetModeRequest struct {
	Device string `json:"device"`
	Mode   string `json:"mode"`
}

type SetManualPumpRequest struct {
	Device string `json:"device"`
	On     bool   `json:"on"`
}

type AlertsRequest struct {
	Device string    `json:"device"`
	Since  time.Time `json:"sinceUtc"`
	Limit  int       `json:"limit"`
}

type StatusRequest struct {
	Device     string `json:"device,omitempty"`
	OfflineSec int    `json:"offlineSec"`
}

type SummaryRequest struct {
	Device     string    `json:"device,omitempty"`
	OfflineSec int       `json:"offlineSec"`
	Since      time.Time `json:"sinceUtc"`
	AlertLimit int       `json:"alertLimit"`
}

type LatestResponse struct {
	Reading *messages.Reading `json:"reading"`
}

type ReadingsResponse struct {
	Readings []messages.Reading `json:"readings"`
}

type ModeResponse struct {
	Mode entities.Mode `json:"mode"`
}

type PumpResponse struct {
	On bool `json:"on"`
}

type AlertsResponse struct {
	Alerts []entities.Alert `json:"alerts"`
}

type DevicesResponse struct {
	Devices []string `json:"devices"`
}

type StatusesResponse struct {
	Statuses []entities.DeviceStatus `json:"statuses"`
}

type SummariesResponse struct {
	Rows []messages.SummaryRow `json:"rows"`
}
