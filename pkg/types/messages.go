// Package types holds the JSON shapes shared with things outside this
// service: the peripheral firmware and the presentation layer.
package types

// Peripheral wire protocol, one JSON object per websocket text frame.
//
// Service -> peripheral:
//   {"action": "UP" | "DOWN" | "SELECT" | "RESET", "timestamp": <epoch ms>}
//
// Peripheral -> service:
//   {"type": "status", "colorName": string, "currentAngle": number, "isMoving": bool}
//   {"type": "selection", "colorGroup": int, "colorName": string, "angle": number}
//
// Commands and telemetry are not correlated; telemetry may arrive at any time.

const (
	TelemetryStatus    = "status"
	TelemetrySelection = "selection"
)

type CommandMessage struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

type StatusMessage struct {
	Type         string  `json:"type"`
	ColorName    string  `json:"colorName"`
	CurrentAngle float64 `json:"currentAngle"`
	IsMoving     bool    `json:"isMoving"`
}

type SelectionMessage struct {
	Type       string  `json:"type"`
	ColorGroup int     `json:"colorGroup"`
	ColorName  string  `json:"colorName"`
	Angle      float64 `json:"angle"`
}
