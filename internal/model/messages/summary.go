package messages

import (
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

// DeviceSummary aggregates everything the dashboard shows for one device.
type DeviceSummary struct {
	Device     string                `json:"device"`
	Latest     *Reading              `json:"latest"`
	Mode       entities.Mode         `json:"mode"`
	ManualPump bool                  `json:"manualPump"`
	Status     entities.DeviceStatus `json:"status"`
	Alerts     []entities.Alert      `json:"alerts"`
}

// SummaryRow is the flattened per-device row of the overview table.
type SummaryRow struct {
	Device               string        `json:"device"`
	Online               bool          `json:"online"`
	SecondsSinceLastSeen int64         `json:"secondsSinceLastSeen"`
	Soil                 *int          `json:"soil"`
	WaterTank            *int          `json:"waterTank"`
	Raining              *bool         `json:"raining"`
	Pump                 *bool         `json:"pump"`
	TempC                *float64      `json:"tempC"`
	Humidity             *float64      `json:"humidity"`
	CreatedAt            *time.Time    `json:"createdUtc"`
	Mode                 entities.Mode `json:"mode"`
	ManualPump           bool          `json:"manualPump"`
	RecentAlertCount     int           `json:"recentAlertCount"`
}

// NewSummaryRow flattens status, latest reading and control state.
func NewSummaryRow(st entities.DeviceStatus, latest *Reading, cs entities.ControlState, alertCount int) SummaryRow {
	row := SummaryRow{
		Device:               st.Device,
		Online:               st.Online,
		SecondsSinceLastSeen: st.SecondsSinceLastSeen,
		Mode:                 cs.Mode,
		ManualPump:           cs.ManualPumpCmd,
		RecentAlertCount:     alertCount,
	}
	if latest != nil {
		row.Soil = latest.Soil
		row.WaterTank = latest.WaterTank
		row.Raining = latest.Raining
		row.Pump = latest.Pump
		row.TempC = latest.TempC
		row.Humidity = latest.Humidity
		if !latest.CreatedAt.IsZero() {
			t := latest.CreatedAt
			row.CreatedAt = &t
		}
	}
	return row
}
