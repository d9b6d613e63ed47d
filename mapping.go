package main

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind selects the conversion routine used for a mapping.
type Kind int

const (
	NoteToggle Kind = iota
	AbsoluteControl
	RelativeControl
)

// Config file spelling of each Kind.
const (
	typeNoteOnOff  = "note_on_off"
	typeCCAbsolute = "cc_absolute"
	typeCCRelative = "cc_relative"
)

func (k Kind) String() string {
	switch k {
	case NoteToggle:
		return typeNoteOnOff
	case AbsoluteControl:
		return typeCCAbsolute
	case RelativeControl:
		return typeCCRelative
	}
	return "unknown"
}

func parseKind(s string) (Kind, bool) {
	switch s {
	case typeNoteOnOff:
		return NoteToggle, true
	case typeCCAbsolute:
		return AbsoluteControl, true
	case typeCCRelative:
		return RelativeControl, true
	}
	return 0, false
}

// Range is the value map of an absolute control: OSC values in
// [InMin, InMax] are scaled onto MIDI values in [OutMin, OutMax].
type Range struct {
	InMin, InMax   float64
	OutMin, OutMax uint8
}

// Mapping describes how one OSC address becomes a MIDI message.
type Mapping struct {
	Address string
	Kind    Kind
	Channel uint8 // 0-15
	Control uint8 // note number for NoteToggle, CC number otherwise
	Range   Range // AbsoluteControl only
	Invert  bool  // RelativeControl only: negate incoming deltas
}

// MappingTable is the address -> Mapping lookup. It is never modified after
// LoadMappings returns, so concurrent lookups need no locking.
type MappingTable struct {
	byAddr map[string]Mapping
}

// MappingEntry is one raw mapping as it appears in the config file. Pointer
// fields distinguish "absent" from zero.
type MappingEntry struct {
	OSCAddress string    `yaml:"osc_address"`
	Type       string    `yaml:"type"`
	Channel    *Integer  `yaml:"channel,omitempty"`
	Control    *Integer  `yaml:"control,omitempty"`
	Note       *Integer  `yaml:"note,omitempty"`
	ValueMap   *ValueMap `yaml:"value_map,omitempty"`
	Invert     *bool     `yaml:"invert,omitempty"`
}

// ValueMap is the raw value_map block of a cc_absolute entry.
type ValueMap struct {
	InMin  *float64 `yaml:"in_min"`
	InMax  *float64 `yaml:"in_max"`
	OutMin *Integer `yaml:"out_min"`
	OutMax *Integer `yaml:"out_max"`
}

// Integer is a whole-number config value. A fractional number is kept as
// written instead of being truncated, so LoadMappings can reject the entry.
type Integer struct {
	value int
	frac  string
}

func intVal(v int) *Integer { return &Integer{value: v} }

func (n *Integer) UnmarshalYAML(node *yaml.Node) error {
	*n = Integer{}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!float" {
		n.frac = node.Value
		return nil
	}
	return node.Decode(&n.value)
}

func (n Integer) MarshalYAML() (interface{}, error) {
	if n.frac != "" {
		return n.frac, nil
	}
	return n.value, nil
}

// check reports whether n is a whole number in [lo, hi].
func (n *Integer) check(lo, hi int) error {
	if n.frac != "" {
		return fmt.Errorf("%w: %s is not a whole number", ErrOutOfRange, n.frac)
	}
	if n.value < lo || n.value > hi {
		return fmt.Errorf("%w: %d not in %d-%d", ErrOutOfRange, n.value, lo, hi)
	}
	return nil
}

// LoadMappings validates every entry and builds the table. Loading is all or
// nothing: the first invalid entry fails the whole load with a *ConfigError.
//
// Duplicate addresses are allowed and the last entry wins; each override is
// logged. invertDefault is used for relative entries that do not set invert.
func LoadMappings(entries []MappingEntry, invertDefault bool) (*MappingTable, error) {
	t := &MappingTable{byAddr: make(map[string]Mapping, len(entries))}
	seenAt := make(map[string]int, len(entries))

	for i, e := range entries {
		m, err := e.toMapping(i, invertDefault)
		if err != nil {
			return nil, err
		}
		if prev, dup := seenAt[m.Address]; dup {
			logger.Warn("config: duplicate osc_address, later entry wins",
				"address", m.Address, "first", prev, "winner", i)
		}
		seenAt[m.Address] = i
		t.byAddr[m.Address] = m
	}
	return t, nil
}

func (e MappingEntry) toMapping(i int, invertDefault bool) (Mapping, error) {
	fail := func(field string, err error) (Mapping, error) {
		return Mapping{}, &ConfigError{Index: i, Address: e.OSCAddress, Field: field, Err: err}
	}

	if e.OSCAddress == "" {
		return fail("osc_address", ErrMissingField)
	}
	if e.OSCAddress[0] != '/' {
		return fail("osc_address", fmt.Errorf("%w: must start with '/'", ErrBadConfig))
	}
	if e.Type == "" {
		return fail("type", ErrMissingField)
	}
	kind, ok := parseKind(e.Type)
	if !ok {
		return fail("type", fmt.Errorf("%w: %q", ErrUnknownType, e.Type))
	}

	if e.Channel == nil {
		return fail("channel", ErrMissingField)
	}
	if err := e.Channel.check(0, 15); err != nil {
		return fail("channel", err)
	}

	control := e.Control
	field := "control"
	switch {
	case e.Control != nil && e.Note != nil:
		return fail("control", fmt.Errorf("%w: set either control or note, not both", ErrBadConfig))
	case e.Note != nil:
		control, field = e.Note, "note"
	case e.Control == nil:
		return fail("control", ErrMissingField)
	}
	if err := control.check(0, 127); err != nil {
		return fail(field, err)
	}

	m := Mapping{
		Address: e.OSCAddress,
		Kind:    kind,
		Channel: uint8(e.Channel.value),
		Control: uint8(control.value),
	}

	switch kind {
	case AbsoluteControl:
		r, field, err := e.ValueMap.toRange()
		if err != nil {
			return fail(field, err)
		}
		m.Range = r
	case RelativeControl:
		m.Invert = invertDefault
		if e.Invert != nil {
			m.Invert = *e.Invert
		}
	}
	return m, nil
}

func (v *ValueMap) toRange() (Range, string, error) {
	if v == nil {
		return Range{}, "value_map", ErrMissingRange
	}
	switch {
	case v.InMin == nil:
		return Range{}, "value_map.in_min", ErrMissingRange
	case v.InMax == nil:
		return Range{}, "value_map.in_max", ErrMissingRange
	case v.OutMin == nil:
		return Range{}, "value_map.out_min", ErrMissingRange
	case v.OutMax == nil:
		return Range{}, "value_map.out_max", ErrMissingRange
	}
	if !isFinite(*v.InMin) {
		return Range{}, "value_map.in_min", fmt.Errorf("%w: must be finite", ErrOutOfRange)
	}
	if !isFinite(*v.InMax) {
		return Range{}, "value_map.in_max", fmt.Errorf("%w: must be finite", ErrOutOfRange)
	}
	if err := v.OutMin.check(0, 127); err != nil {
		return Range{}, "value_map.out_min", err
	}
	if err := v.OutMax.check(0, 127); err != nil {
		return Range{}, "value_map.out_max", err
	}
	return Range{
		InMin:  *v.InMin,
		InMax:  *v.InMax,
		OutMin: uint8(v.OutMin.value),
		OutMax: uint8(v.OutMax.value),
	}, "", nil
}

// Lookup returns the mapping registered for an exact OSC address.
func (t *MappingTable) Lookup(address string) (Mapping, bool) {
	m, ok := t.byAddr[address]
	return m, ok
}

// Len is the number of distinct addresses in the table.
func (t *MappingTable) Len() int { return len(t.byAddr) }

// Mappings returns every mapping sorted by address.
func (t *MappingTable) Mappings() []Mapping {
	out := make([]Mapping, 0, len(t.byAddr))
	for _, m := range t.byAddr {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
