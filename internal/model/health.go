package model

import "time"

// SystemStatus is the remote service self-reported health.
type SystemStatus string

const (
	SystemOnline  SystemStatus = "online"
	SystemWarning SystemStatus = "warning"
	SystemOffline SystemStatus = "offline"
)

// ParseSystemStatus accepts the three known values only.
func ParseSystemStatus(raw string) (SystemStatus, bool) {
	switch SystemStatus(raw) {
	case SystemOnline, SystemWarning, SystemOffline:
		return SystemStatus(raw), true
	default:
		return "", false
	}
}

// HealthSnapshot is the last known system/network/camera health.
// ObservedAt is the time of the last successful status response and stays
// zero until one arrives.
type HealthSnapshot struct {
	Camera     bool         `json:"camera"`
	System     SystemStatus `json:"system"`
	Network    bool         `json:"network"`
	ObservedAt time.Time    `json:"observed_at"`
}

// StatusReport is a decoded /api/status response.
type StatusReport struct {
	System  SystemStatus
	Network bool
}

// SystemIndicator is the system-health signal payload.
type SystemIndicator struct {
	Status     SystemStatus `json:"status"`
	ObservedAt time.Time    `json:"observed_at"`
}

// NetworkIndicator is the network-health signal payload.
type NetworkIndicator struct {
	Online bool `json:"online"`
}
