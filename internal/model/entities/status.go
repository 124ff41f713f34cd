package entities

import "time"

// NoData marks SecondsSinceLastSeen for a device that never reported.
const NoData int64 = -1

// DeviceStatus reports liveness against a caller-supplied offline threshold.
type DeviceStatus struct {
	Device               string     `json:"device"`
	LastSeen             *time.Time `json:"lastSeenUtc"`
	Online               bool       `json:"online"`
	SecondsSinceLastSeen int64      `json:"secondsSinceLastSeen"`
}

// UnknownStatus is the status of a device with no last-seen timestamp.
func UnknownStatus(device string) DeviceStatus {
	return DeviceStatus{Device: device, SecondsSinceLastSeen: NoData}
}

// StatusFrom derives online/offline from the elapsed seconds.
func StatusFrom(device string, lastSeen time.Time, elapsedSec int64, offlineSec int) DeviceStatus {
	ls := lastSeen.UTC()
	return DeviceStatus{
		Device:               device,
		LastSeen:             &ls,
		Online:               elapsedSec <= int64(offlineSec),
		SecondsSinceLastSeen: elapsedSec,
	}
}
