package messages

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reading is one telemetry sample from a device. Optional sensors are nil
// when the device did not report them.
type Reading struct {
	Device    string    `json:"device"`
	Soil      *int      `json:"soil"`
	WaterTank *int      `json:"water_tank"`
	Raining   *bool     `json:"raining"`
	Pump      *bool     `json:"pump"`
	TempC     *float64  `json:"temp_c"`
	Humidity  *float64  `json:"humidity"`
	CreatedAt time.Time `json:"created_utc"`
}

// MissingCritical lists which of soil, water_tank and raining are absent.
func (r Reading) MissingCritical() []string {
	var out []string
	if r.Soil == nil {
		out = append(out, "soil")
	}
	if r.WaterTank == nil {
		out = append(out, "water_tank")
	}
	if r.Raining == nil {
		out = append(out, "raining")
	}
	return out
}

// UnmarshalJSON accetta i payload "sporchi" dei dispositivi: numeri come
// stringhe, booleani come 0/1 o "on"/"off", e alcuni alias dei campi.
func (r *Reading) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = Reading{}

	if v, ok := first(m, "device", "device_id", "deviceId").(string); ok {
		r.Device = strings.TrimSpace(v)
	}
	r.Soil = intOf(first(m, "soil", "moisture"))
	r.WaterTank = intOf(first(m, "water_tank", "waterTank", "tank"))
	r.Raining = boolOf(first(m, "raining", "rain"))
	r.Pump = boolOf(first(m, "pump", "pump_state"))
	r.TempC = floatOf(first(m, "temp_c", "tempC", "temperature"))
	r.Humidity = floatOf(first(m, "humidity"))

	if s, ok := first(m, "created_utc", "createdUtc", "timestamp").(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			r.CreatedAt = t.UTC()
		}
	}
	return nil
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func floatOf(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = p
	case bool:
		if x {
			f = 1
		}
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intOf(v any) *int {
	f := floatOf(v)
	if f == nil {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}

func boolOf(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case float64:
		b = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "on", "yes":
			b = true
		case "false", "0", "off", "no":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

// Helpers for building readings in code and tests.

func IntPtr(v int) *int           { return &v }
func BoolPtr(v bool) *bool        { return &v }
func FloatPtr(v float64) *float64 { return &v }
