package types

import "testing"

func TestParseAction(t *testing.T) {
	cases := []struct {
		in     string
		want   Action
		wantOK bool
	}{
		{"UP", ActionUp, true},
		{"down", ActionDown, true},
		{" Select ", ActionSelect, true},
		{"", ActionNone, true},
		{"null", ActionNone, true},
		{"RESET", ActionNone, false},
		{"WINK", ActionNone, false},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseAction(tc.in)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("ParseAction(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestActionString(t *testing.T) {
	if ActionNone.String() != "NONE" {
		t.Fatalf("ActionNone.String() = %q, want NONE", ActionNone.String())
	}
	if ActionSelect.String() != "SELECT" {
		t.Fatalf("ActionSelect.String() = %q, want SELECT", ActionSelect.String())
	}
}
