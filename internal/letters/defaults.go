package letters

import "fmt"

// Mode selects which table drives the session.
type Mode string

const (
	ModeLetter  Mode = "letter"
	ModeNumber  Mode = "number"
	ModeKeyword Mode = "keyword"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLetter, ModeNumber, ModeKeyword:
		return Mode(s), nil
	case "":
		return ModeLetter, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Wheel colors, in the order the peripheral's color wheel reports them.
var WheelColors = []string{"Green", "Yellow", "Pink", "Blue", "Black", "Red"}

// DefaultPositions is the slot count per group on the physical wheel.
const DefaultPositions = 6

// Position 0 of every group is the wheel's home slot and stays unmapped, so a
// double SELECT backs out without typing anything.
func row(tokens ...string) map[int]string {
	m := make(map[int]string, len(tokens))
	for i, t := range tokens {
		m[i+1] = t
	}
	return m
}

func wheel(rows ...map[int]string) []ColorGroup {
	groups := make([]ColorGroup, len(rows))
	for i, r := range rows {
		groups[i] = ColorGroup{Name: WheelColors[i], Positions: r}
	}
	return groups
}

// Canonical is the A-Z letter table.
func Canonical() *Table {
	return Must(wheel(
		row("A", "B", "C", "D", "E"),
		row("F", "G", "H", "I", "J"),
		row("K", "L", "M", "N", "O"),
		row("P", "Q", "R", "S", "T"),
		row("U", "V", "W", "X", "Y"),
		row("Z", " ", ".", "?", "!"),
	), DefaultPositions)
}

func Numbers() *Table {
	return Must(wheel(
		row("1", "2"),
		row("3", "4"),
		row("5", "6"),
		row("7", "8"),
		row("9", "0"),
		row(" ", "."),
	), DefaultPositions)
}

func Keywords() *Table {
	return Must(wheel(
		row("YES", "NO"),
		row("HELP", "WATER"),
		row("FOOD", "PAIN"),
		row("TOILET", "SLEEP"),
		row("HOT", "COLD"),
		row("THANK YOU", "CALL NURSE"),
	), DefaultPositions)
}

// Set maps each mode to its table.
type Set map[Mode]*Table

func DefaultSet() Set {
	return Set{
		ModeLetter:  Canonical(),
		ModeNumber:  Numbers(),
		ModeKeyword: Keywords(),
	}
}

// Table returns the table for m, falling back to the letter table.
func (s Set) Table(m Mode) *Table {
	if t, ok := s[m]; ok && t != nil {
		return t
	}
	if t, ok := s[ModeLetter]; ok && t != nil {
		return t
	}
	return Canonical()
}
