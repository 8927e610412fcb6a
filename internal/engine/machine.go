package engine

import (
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/types"
)

// Machine wraps Apply with edge detection: a held stable action is published
// for up to the stabilizer's clear delay, but only the moment its identity
// becomes non-empty counts as input.
type Machine struct {
	state    State
	table    *letters.Table
	consumed types.Action
}

func NewMachine(t *letters.Table) *Machine {
	return &Machine{state: NewState(), table: t}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Table() *letters.Table { return m.table }

// Observe feeds the current stable action identity. Repeats of the same
// identity are ignored until it goes back to empty or changes.
func (m *Machine) Observe(a types.Action) ([]Event, error) {
	if a == m.consumed {
		return nil, nil
	}
	m.consumed = a
	if a == types.ActionNone {
		return nil, nil
	}
	return m.apply(Input{Type: InAction, Action: a})
}

func (m *Machine) Reset() ([]Event, error) {
	return m.apply(Input{Type: InReset})
}

func (m *Machine) Override(group int) ([]Event, error) {
	return m.apply(Input{Type: InOverride, GroupIndex: group})
}

// SetTable swaps the lookup table and resets selection. Used when the
// communication mode changes.
func (m *Machine) SetTable(t *letters.Table) ([]Event, error) {
	m.table = t
	return m.Reset()
}

// Candidate is the token the current selection would emit on SELECT.
func (m *Machine) Candidate() (string, bool) {
	if m.state.Mode != ModeItemSelect {
		return "", false
	}
	return m.table.Lookup(m.state.GroupIndex, m.state.PositionIndex)
}

func (m *Machine) apply(in Input) ([]Event, error) {
	events, next, err := Apply(m.state, m.table, in)
	if err != nil {
		return nil, err
	}
	m.state = next
	return events, nil
}
