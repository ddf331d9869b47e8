// Package variables holds the static G3PW variable-area map: family/offset
// to name, per-key decode scaling, the notation table for the communications
// settings family and the 32-entry status bit-label table. The table is
// loaded once from a read-only YAML document and never mutated.
package variables

import (
	_ "embed"
	"fmt"
	"strconv"
	"sync"

	"sigs.k8s.io/yaml"
)

//go:embed g3pw.yaml
var defaultTableYaml []byte

type tableDocument struct {
	Families     []familyDocument `json:"families"`
	StatusLabels []string         `json:"statusLabels"`
}

type familyDocument struct {
	Code    string          `json:"code"`
	Wide    string          `json:"wide"`
	Entries []entryDocument `json:"entries"`
}

type entryDocument struct {
	Offset   string            `json:"offset"`
	Name     string            `json:"name"`
	Scaling  Scaling           `json:"scaling,omitempty"`
	Wide     bool              `json:"wide,omitempty"`
	Notation map[string]string `json:"notation,omitempty"`
}

// Table is the loaded address map. Every lookup is read-only.
type Table struct {
	families     map[string]map[uint16]*Entry
	byName       map[string]Address
	statusLabels []string
}

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// Default returns the built-in G3PW table.
func Default() *Table {
	defaultTableOnce.Do(func() {
		t, err := Load(defaultTableYaml)
		if err != nil {
			panic(fmt.Sprintf("variables: embedded table invalid: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Load parses a table document.
func Load(data []byte) (*Table, error) {
	doc := &tableDocument{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	if len(doc.StatusLabels) != 32 {
		return nil, fmt.Errorf("variables: status label table has %d entries, want 32", len(doc.StatusLabels))
	}

	t := &Table{
		families:     make(map[string]map[uint16]*Entry),
		byName:       make(map[string]Address),
		statusLabels: doc.StatusLabels,
	}
	for _, fd := range doc.Families {
		narrow := make(map[uint16]*Entry, len(fd.Entries))
		t.families[fd.Code] = narrow
		if fd.Wide != "" {
			t.families[fd.Wide] = narrow
		}
		for _, ed := range fd.Entries {
			offset, err := strconv.ParseUint(ed.Offset, 16, 16)
			if err != nil {
				return nil, fmt.Errorf("variables: bad offset %q in family %s: %v", ed.Offset, fd.Code, err)
			}
			scaling := ed.Scaling
			if scaling == "" {
				scaling = ScalingIdentity
			}
			entry := &Entry{Name: ed.Name, Scaling: scaling, notation: ed.Notation}
			narrow[uint16(offset)] = entry

			// Names resolve to the 4-hex-digit family unless the value only
			// fits the 8-digit twin (the Status double word).
			family := fd.Code
			if ed.Wide {
				if fd.Wide == "" {
					return nil, fmt.Errorf("variables: %q is wide but family %s has no wide code", ed.Name, fd.Code)
				}
				family = fd.Wide
			}
			if _, exists := t.byName[ed.Name]; !exists {
				t.byName[ed.Name] = Address{Family: family, Offset: uint16(offset)}
			}
		}
	}
	return t, nil
}

// Resolve maps a human-readable name to its variable address.
func (t *Table) Resolve(name string) (Address, bool) {
	a, ok := t.byName[name]
	return a, ok
}

// EntryAt returns the decode rule at family/offset. Both the 4- and
// 8-digit family codes reach the same entries.
func (t *Table) EntryAt(family string, offset uint16) (*Entry, bool) {
	entries, ok := t.families[family]
	if !ok {
		return nil, false
	}
	e, ok := entries[offset]
	return e, ok
}

// EntryFor returns the decode rule for a named variable.
func (t *Table) EntryFor(name string) (*Entry, bool) {
	a, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.EntryAt(a.Family, a.Offset)
}

// StatusLabels returns the 32 bit labels, reserved entries included.
func (t *Table) StatusLabels() []string {
	labels := make([]string, len(t.statusLabels))
	copy(labels, t.statusLabels)
	return labels
}

// StatusFieldCount is the number of named sub-fields a status decode
// produces, derived from the label table rather than hard-coded.
func (t *Table) StatusFieldCount() int {
	n := 0
	for _, label := range t.statusLabels {
		if label != ReservedLabel {
			n++
		}
	}
	return n
}

// IsStatusLabel reports whether name is one of the status sub-field labels.
func (t *Table) IsStatusLabel(name string) bool {
	for _, label := range t.statusLabels {
		if label != ReservedLabel && label == name {
			return true
		}
	}
	return false
}
