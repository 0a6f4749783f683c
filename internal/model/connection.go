package model

// ConnectionState is the media stream connectivity state owned by the
// connection health monitor.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	// ConnectionFailed is terminal until the monitor is reset.
	ConnectionFailed ConnectionState = "failed"
)

// Healthy reports whether the camera indicator should show the stream as up.
func (s ConnectionState) Healthy() bool {
	return s == ConnectionConnected
}

// Ordinal maps the state to a stable number for gauges.
func (s ConnectionState) Ordinal() int {
	switch s {
	case ConnectionConnecting:
		return 1
	case ConnectionConnected:
		return 2
	case ConnectionFailed:
		return 3
	default:
		return 0
	}
}

// CameraIndicator is the camera-health signal payload.
type CameraIndicator struct {
	State       ConnectionState `json:"state"`
	Healthy     bool            `json:"healthy"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
}

// ReconnectProgress is emitted on every reconnect attempt and once when the
// retry budget is exhausted.
type ReconnectProgress struct {
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Failed      bool   `json:"failed"`
	Message     string `json:"message"`
}
