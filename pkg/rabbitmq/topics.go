package rabbitmq

import "strings"

// Topic layout of the device bus.
const (
	TelemetryWildcard = "devices/+/telemetry"
	telemetryTmpl     = "devices/{device}/telemetry"
	pumpTmpl          = "devices/{device}/pump"
)

func TelemetryTopic(device string) string {
	return strings.ReplaceAll(telemetryTmpl, "{device}", device)
}

func PumpTopic(device string) string {
	return strings.ReplaceAll(pumpTmpl, "{device}", device)
}

// DeviceFromTopic extracts the device id from devices/{device}/<kind>.
func DeviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[1] == "" || parts[1] == "+" || parts[1] == "#" {
		return "", false
	}
	return parts[1], true
}

// qosFor: pump commands must arrive (QoS 1), telemetry is periodic (QoS 0).
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasSuffix(t, "/pump") {
		return 1
	}
	return 0
}
