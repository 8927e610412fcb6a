// Package letters holds the two-level lookup from (color group, position) to
// the token a selection produces.
package letters

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var (
	ErrNoGroups      = errors.New("table has no groups")
	ErrBadPosition   = errors.New("position out of range")
	ErrDuplicateName = errors.New("duplicate group name")
)

type ColorGroup struct {
	Index     int
	Name      string
	Positions map[int]string
}

// Table is immutable once built.
type Table struct {
	groups    []ColorGroup
	positions int
}

// New builds a table with positions slots per group. Group indexes are
// reassigned from slice order.
func New(groups []ColorGroup, positions int) (*Table, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	if positions <= 0 {
		return nil, fmt.Errorf("positions must be positive, got %d", positions)
	}

	fold := cases.Fold()
	seen := make(map[string]bool, len(groups))
	t := &Table{groups: make([]ColorGroup, len(groups)), positions: positions}
	for i, g := range groups {
		key := fold.String(g.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, g.Name)
		}
		seen[key] = true

		cp := ColorGroup{Index: i, Name: g.Name, Positions: make(map[int]string, len(g.Positions))}
		for pos, tok := range g.Positions {
			if pos < 0 || pos >= positions {
				return nil, fmt.Errorf("group %q position %d: %w", g.Name, pos, ErrBadPosition)
			}
			if tok == "" {
				continue
			}
			cp.Positions[pos] = tok
		}
		t.groups[i] = cp
	}
	return t, nil
}

// Must is New for tables known to be valid at compile time.
func Must(groups []ColorGroup, positions int) *Table {
	t, err := New(groups, positions)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Groups() int { return len(t.groups) }

func (t *Table) Positions() int { return t.positions }

// Lookup returns the token at (group, position), if that slot is mapped.
func (t *Table) Lookup(group, position int) (string, bool) {
	if group < 0 || group >= len(t.groups) {
		return "", false
	}
	tok, ok := t.groups[group].Positions[position]
	return tok, ok
}

func (t *Table) Group(i int) (ColorGroup, bool) {
	if i < 0 || i >= len(t.groups) {
		return ColorGroup{}, false
	}
	return t.groups[i], true
}

// IndexOf finds a group by name, ignoring case.
func (t *Table) IndexOf(name string) (int, bool) {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(name))
	if want == "" {
		return 0, false
	}
	for _, g := range t.groups {
		if fold.String(g.Name) == want {
			return g.Index, true
		}
	}
	return 0, false
}

// String renders the table one group per line, unmapped slots as "·".
func (t *Table) String() string {
	var b strings.Builder
	for _, g := range t.groups {
		fmt.Fprintf(&b, "%d %-8s", g.Index, g.Name)
		for p := 0; p < t.positions; p++ {
			tok, ok := g.Positions[p]
			if !ok {
				tok = "·"
			}
			b.WriteString(" ")
			b.WriteString(tok)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Tokens lists every mapped token in group/position order.
func (t *Table) Tokens() []string {
	var out []string
	for _, g := range t.groups {
		keys := make([]int, 0, len(g.Positions))
		for p := range g.Positions {
			keys = append(keys, p)
		}
		sort.Ints(keys)
		for _, p := range keys {
			out = append(out, g.Positions[p])
		}
	}
	return out
}
