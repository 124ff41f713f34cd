package irrigation

import (
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

// Fixed policy thresholds, in percent.
const (
	MoistureOn  = 30 // pump turns on below this soil moisture
	MoistureOff = 40 // pump turns off above this soil moisture
	TankLow     = 10 // hard stop below this tank level; low-tank alert at or below it
	TankRecover = 15 // low-tank latch resets at or above this level
)

// DecidePumpCmd applies the AUTO policy: fail closed on missing inputs,
// hard stop on rain or low tank, hysteresis on soil moisture otherwise.
func DecidePumpCmd(r messages.Reading, current bool) bool {
	cmd, _ := decideAuto(r, current)
	return cmd
}

func decideAuto(r messages.Reading, current bool) (bool, string) {
	if strings.TrimSpace(r.Device) == "" {
		return false, "missing device id"
	}
	if missing := r.MissingCritical(); len(missing) > 0 {
		return false, "missing " + strings.Join(missing, "/")
	}
	switch {
	case *r.Raining:
		return false, "raining"
	case *r.WaterTank < TankLow:
		return false, fmt.Sprintf("tank %d%% < %d%%", *r.WaterTank, TankLow)
	case !current && *r.Soil < MoistureOn:
		return true, fmt.Sprintf("soil %d%% < %d%%", *r.Soil, MoistureOn)
	case current && *r.Soil > MoistureOff:
		return false, fmt.Sprintf("soil %d%% > %d%%", *r.Soil, MoistureOff)
	}
	return current, fmt.Sprintf("soil %d%% holds", *r.Soil)
}

// Decide is the pure decision step. It returns the decision and the control
// state to store back; only AUTO mode changes the state.
func Decide(r messages.Reading, st entities.ControlState) (messages.PumpDecision, entities.ControlState) {
	d := messages.PumpDecision{Device: r.Device, Mode: st.Mode}
	if st.Mode == entities.ModeManual {
		d.PumpCmd = st.ManualPumpCmd
		d.Reason = fmt.Sprintf("MANUAL mode -> manualPumpCmd=%t", d.PumpCmd)
		return d, st
	}

	cmd, why := decideAuto(r, st.LastAutoCmd)
	st.Mode = entities.ModeAuto
	st.LastAutoCmd = cmd
	d.Mode = entities.ModeAuto
	d.PumpCmd = cmd
	d.Reason = fmt.Sprintf("AUTO mode -> decided pump_cmd=%t (%s)", cmd, why)
	return d, st
}
