package letters

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSpec is the on-disk shape of a table file:
//
//	positions: 6
//	modes:
//	  letter:
//	    - name: Green
//	      slots: [~, A, B, C, D, E]
//
// A null or empty slot is unmapped.
type fileSpec struct {
	Positions int                       `yaml:"positions"`
	Modes     map[string][]groupFileSpec `yaml:"modes"`
}

// Slots are pointers so a null keeps its index instead of being dropped.
type groupFileSpec struct {
	Name  string    `yaml:"name"`
	Slots []*string `yaml:"slots"`
}

// LoadFile reads a table file and overlays it on the default set, so a file
// may redefine only some modes.
func LoadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (Set, error) {
	var spec fileSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode table file: %w", err)
	}

	positions := spec.Positions
	if positions == 0 {
		positions = DefaultPositions
	}

	set := DefaultSet()
	for name, groups := range spec.Modes {
		mode, err := ParseMode(name)
		if err != nil {
			return nil, err
		}
		cgs := make([]ColorGroup, len(groups))
		for i, g := range groups {
			if len(g.Slots) > positions {
				return nil, fmt.Errorf("mode %s group %q: %d slots for %d positions: %w",
					mode, g.Name, len(g.Slots), positions, ErrBadPosition)
			}
			pos := make(map[int]string, len(g.Slots))
			for p, tok := range g.Slots {
				if tok != nil && *tok != "" {
					pos[p] = *tok
				}
			}
			cgs[i] = ColorGroup{Name: g.Name, Positions: pos}
		}
		t, err := New(cgs, positions)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", mode, err)
		}
		set[mode] = t
	}
	return set, nil
}
