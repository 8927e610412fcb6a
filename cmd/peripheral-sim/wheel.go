package main

import (
	"sync"

	"github.com/DoyleJ11/netra-vaani/internal/types"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

// wheel models the color wheel firmware. The controller only drives it
// while a group is engaged: SELECT engages, UP and DOWN step the pointer
// through the group's slots, SELECT again releases and homes the pointer.
// UP or DOWN while idle turns the wheel to another group, as a hand on the
// wheel would, and the firmware reports the new group as a selection.
type wheel struct {
	mu        sync.Mutex
	colors    []string
	positions int
	group     int
	position  int
	engaged   bool
}

func newWheel(colors []string, positions int) *wheel {
	return &wheel{colors: colors, positions: positions}
}

func (w *wheel) angle() float64 {
	sector := 360 / float64(len(w.colors))
	return float64(w.group)*sector + float64(w.position)*sector/float64(w.positions)
}

func (w *wheel) status() pub.StatusMessage {
	return pub.StatusMessage{
		Type:         pub.TelemetryStatus,
		ColorName:    w.colors[w.group],
		CurrentAngle: w.angle(),
	}
}

func (w *wheel) Status() pub.StatusMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status()
}

// Apply moves the wheel for one command and returns the telemetry pushed in
// response.
func (w *wheel) Apply(a types.Action) []any {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.colors)
	switch a {
	case types.ActionUp, types.ActionDown:
		step := 1
		if a == types.ActionDown {
			step = -1
		}
		if w.engaged {
			w.position = min(max(w.position+step, 0), w.positions-1)
			return []any{w.status()}
		}
		w.group = (w.group + step + n) % n
		return []any{w.status(), pub.SelectionMessage{
			Type:       pub.TelemetrySelection,
			ColorGroup: w.group,
			ColorName:  w.colors[w.group],
			Angle:      w.angle(),
		}}
	case types.ActionSelect:
		w.engaged = !w.engaged
		w.position = 0
	case types.ActionReset:
		w.engaged = false
		w.group, w.position = 0, 0
	default:
		return nil
	}
	return []any{w.status()}
}

// parseCommand accepts the four actions the firmware understands.
func parseCommand(s string) (types.Action, bool) {
	if s == string(types.ActionReset) {
		return types.ActionReset, true
	}
	a, ok := types.ParseAction(s)
	return a, ok && a != types.ActionNone
}
