package messages

import (
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

// PumpDecision is the outcome of one pushReading call.
type PumpDecision struct {
	Device    string        `json:"device"`
	PumpCmd   bool          `json:"pumpCmd"`
	Reason    string        `json:"reason"`
	Mode      entities.Mode `json:"mode,omitempty"`
	DecidedAt time.Time     `json:"decidedUtc"`
}

// PumpCommand is published to devices/{id}/pump after each decision.
type PumpCommand struct {
	Device    string    `json:"device"`
	PumpCmd   bool      `json:"pump_cmd"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
