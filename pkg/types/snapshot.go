package types

// View is the snapshot pushed to the presentation layer after every change.
// It is a copy; nothing the presentation layer does with it reaches back into
// the dispatcher.
type View struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id,omitempty"`
	Active    bool   `json:"active"`
	Mode      string `json:"mode"` // "letter" | "number" | "keyword"

	// Stable action as published by the stabilizer. Progress stays 0 when the
	// HTTP classifier drives the session.
	Action   string  `json:"action"`
	Progress float64 `json:"progress"`

	Selection  SelectionView  `json:"selection"`
	Connection ConnectionView `json:"connection"`
	Device     *DeviceView    `json:"device,omitempty"`

	Text        string `json:"text"`
	CameraError string `json:"camera_error,omitempty"`
}

type SelectionView struct {
	State         string `json:"state"` // "group_select" | "item_select"
	GroupIndex    int    `json:"group_index"`
	GroupName     string `json:"group_name"`
	PositionIndex int    `json:"position_index"`
	Candidate     string `json:"candidate,omitempty"`
}

type ConnectionView struct {
	Status   string `json:"status"` // Offline | Connecting | Online | Connection Timeout | Connection Error
	Attempts int    `json:"attempts"`
	Address  string `json:"address,omitempty"`
}

// DeviceView carries the latest status telemetry from the peripheral.
type DeviceView struct {
	ColorName string  `json:"color_name"`
	Angle     float64 `json:"angle"`
	Moving    bool    `json:"moving"`
}
