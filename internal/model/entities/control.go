package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects who decides the pump command for a device.
type Mode string

const (
	ModeAuto   Mode = "AUTO"
	ModeManual Mode = "MANUAL"
)

var ErrInvalidMode = errors.New("invalid mode")

// ParseMode accepts AUTO or MANUAL in any case, surrounding blanks ignored.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ModeAuto):
		return ModeAuto, nil
	case string(ModeManual):
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q (expected AUTO or MANUAL)", ErrInvalidMode, s)
}

func (m Mode) Valid() bool { return m == ModeAuto || m == ModeManual }

// ControlState is the per-device control configuration kept by the core.
type ControlState struct {
	Mode          Mode `json:"mode"`
	ManualPumpCmd bool `json:"manualPumpCmd"`
	LastAutoCmd   bool `json:"lastAutoCmd"`
}

func DefaultControlState() ControlState {
	return ControlState{Mode: ModeAuto}
}

type ControlEventType string

const (
	ControlSetMode       ControlEventType = "SET_MODE"
	ControlSetManualPump ControlEventType = "SET_MANUAL_PUMP"
)

const DefaultControlSource = "CONTROL_API"

// ControlEvent is an audit record of an operator change.
type ControlEvent struct {
	Device     string           `json:"device"`
	Type       ControlEventType `json:"type"`
	Mode       *Mode            `json:"mode,omitempty"`
	ManualPump *bool            `json:"manualPump,omitempty"`
	Source     string           `json:"source"`
}
