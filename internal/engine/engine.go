package engine

import (
	"errors"

	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/types"
)

var ErrUnsupportedInput = errors.New("unsupported input")
var ErrGroupOutOfRange = errors.New("group index out of range")
var ErrNoTable = errors.New("no letter table")

type Mode string

const (
	ModeGroupSelect Mode = "group_select"
	ModeItemSelect  Mode = "item_select"
)

type State struct {
	Mode          Mode
	GroupIndex    int
	PositionIndex int
}

type InputType string

const (
	InAction   InputType = "Action"   // confirmed stable action edge
	InReset    InputType = "Reset"    // presentation layer reset
	InOverride InputType = "Override" // selection telemetry from the device
)

type Input struct {
	Type       InputType
	Action     types.Action
	GroupIndex int
}

/*
	GroupSelect UP/DOWN   -> EvtGroupChanged
	GroupSelect SELECT    -> EvtCommandIssued(SELECT) -> EvtModeChanged
	ItemSelect  UP/DOWN   -> EvtPositionChanged (only when it moved) -> EvtCommandIssued
	ItemSelect  SELECT    -> EvtTokenEmitted (when mapped) -> EvtCommandIssued(SELECT) -> EvtModeChanged
	Reset                 -> EvtCommandIssued(RESET), state zeroed
	Override              -> EvtGroupChanged, mode and position untouched
*/

type EventType string

const (
	EvtGroupChanged    EventType = "GroupChanged"
	EvtPositionChanged EventType = "PositionChanged"
	EvtModeChanged     EventType = "ModeChanged"
	EvtTokenEmitted    EventType = "TokenEmitted"
	EvtCommandIssued   EventType = "CommandIssued"
)

type Event struct {
	Type     EventType
	Command  types.Action
	Token    string
	Group    int
	Position int
	Mode     Mode
}

func Apply(s State, t *letters.Table, in Input) ([]Event, State, error) {
	if t == nil || t.Groups() == 0 {
		return nil, s, ErrNoTable
	}
	n := t.Groups()
	maxPos := t.Positions() - 1
	newState := s

	switch in.Type {
	case InReset:
		newState = NewState()
		return []Event{{Type: EvtCommandIssued, Command: types.ActionReset}}, newState, nil

	case InOverride:
		if in.GroupIndex < 0 || in.GroupIndex >= n {
			return nil, s, ErrGroupOutOfRange
		}
		// The device is authoritative here: no position reset.
		newState.GroupIndex = in.GroupIndex
		return []Event{{Type: EvtGroupChanged, Group: in.GroupIndex}}, newState, nil

	case InAction:
	default:
		return nil, s, ErrUnsupportedInput
	}

	switch s.Mode {
	case ModeGroupSelect, "":
		switch in.Action {
		case types.ActionUp:
			newState.GroupIndex = (s.GroupIndex + 1) % n
			newState.PositionIndex = 0
			return []Event{{Type: EvtGroupChanged, Group: newState.GroupIndex}}, newState, nil

		case types.ActionDown:
			newState.GroupIndex = (s.GroupIndex - 1 + n) % n
			newState.PositionIndex = 0
			return []Event{{Type: EvtGroupChanged, Group: newState.GroupIndex}}, newState, nil

		case types.ActionSelect:
			newState.Mode = ModeItemSelect
			newState.PositionIndex = 0
			return []Event{
				{Type: EvtCommandIssued, Command: types.ActionSelect},
				{Type: EvtModeChanged, Mode: ModeItemSelect},
			}, newState, nil
		}

	case ModeItemSelect:
		switch in.Action {
		case types.ActionUp:
			newState.PositionIndex = min(s.PositionIndex+1, maxPos)
			return positionEvents(s, newState, types.ActionUp), newState, nil

		case types.ActionDown:
			newState.PositionIndex = max(s.PositionIndex-1, 0)
			return positionEvents(s, newState, types.ActionDown), newState, nil

		case types.ActionSelect:
			var events []Event
			if tok, ok := t.Lookup(s.GroupIndex, s.PositionIndex); ok {
				events = append(events, Event{Type: EvtTokenEmitted, Token: tok, Group: s.GroupIndex, Position: s.PositionIndex})
			}
			// SELECT goes to the device even on an unmapped slot so the wheel
			// and the UI stay in step.
			events = append(events,
				Event{Type: EvtCommandIssued, Command: types.ActionSelect},
				Event{Type: EvtModeChanged, Mode: ModeGroupSelect},
			)
			newState.Mode = ModeGroupSelect
			newState.PositionIndex = 0
			return events, newState, nil
		}
	}

	return nil, s, ErrUnsupportedInput
}

func positionEvents(old, s State, cmd types.Action) []Event {
	var events []Event
	if old.PositionIndex != s.PositionIndex {
		events = append(events, Event{Type: EvtPositionChanged, Position: s.PositionIndex})
	}
	return append(events, Event{Type: EvtCommandIssued, Command: cmd})
}
