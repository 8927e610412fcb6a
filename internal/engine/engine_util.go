package engine

import "github.com/DoyleJ11/netra-vaani/internal/types"

func NewState() State {
	return State{Mode: ModeGroupSelect}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Commands extracts the device commands from events, in order.
func Commands(events []Event) []types.Action {
	var out []types.Action
	for _, event := range events {
		if event.Type == EvtCommandIssued {
			out = append(out, event.Command)
		}
	}
	return out
}

// Tokens extracts the emitted output tokens from events, in order.
func Tokens(events []Event) []string {
	var out []string
	for _, event := range events {
		if event.Type == EvtTokenEmitted {
			out = append(out, event.Token)
		}
	}
	return out
}
