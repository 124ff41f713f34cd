package entities

import "time"

// AlertType is open-ended; the core raises the three below.
type AlertType string

const (
	AlertSensorMissing AlertType = "SENSOR_MISSING"
	AlertTankLow       AlertType = "TANK_LOW"
	AlertRaining       AlertType = "RAINING"
)

type Severity string

const (
	SeverityInfo Severity = "INFO"
	SeverityWarn Severity = "WARN"
	SeverityCrit Severity = "CRIT"
)

// Alert is immutable once stored. IDs are assigned by the store and grow strictly.
type Alert struct {
	ID        int64     `json:"id"`
	Device    string    `json:"device"`
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdUtc"`
}
