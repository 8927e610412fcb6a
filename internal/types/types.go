package types

import (
	"strings"

	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

// Action is a classified gesture. The zero value means no action.
type Action string

const (
	ActionNone   Action = ""
	ActionUp     Action = "UP"
	ActionDown   Action = "DOWN"
	ActionSelect Action = "SELECT"
	// ActionReset is only ever sent to the peripheral; the classifier never
	// produces it.
	ActionReset Action = "RESET"
)

func (a Action) String() string {
	if a == ActionNone {
		return "NONE"
	}
	return string(a)
}

// ParseAction maps a classifier label to a gesture. Empty, "none" and "null"
// all mean no action.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE", "NULL":
		return ActionNone, true
	case "UP":
		return ActionUp, true
	case "DOWN":
		return ActionDown, true
	case "SELECT":
		return ActionSelect, true
	default:
		return ActionNone, false
	}
}

// ClientMessage is what the presentation layer sends over the view socket.
type ClientMessage struct {
	Type string `json:"type"` // "Reset" | "Tap" | "ClearText" | "SetMode" | "Connect" | "Disconnect"
	Char string `json:"char,omitempty"`
	Mode string `json:"mode,omitempty"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

type ServerMessage struct {
	Type  string    `json:"type"` // "View" | "Error"
	View  *pub.View `json:"view,omitempty"`
	Error string    `json:"error,omitempty"`
}
