package main

import (
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Address shapes used by common OSC layouts (TouchOSC, Open Stage Control,
// Tangent Hub) and the mapping type each usually wants.
var suggestRules = []struct {
	re   *regexp.Regexp
	kind Kind
}{
	{regexp.MustCompile(`^/\d+/(?:button|push|toggle)(\d+)$`), NoteToggle},
	{regexp.MustCompile(`^/\d+/(?:fader|knob|rotary)(\d+)$`), AbsoluteControl},
	{regexp.MustCompile(`^/\d+/encoder(\d+)$`), RelativeControl},
	{regexp.MustCompile(`/delta$`), RelativeControl},
}

// suggestEntry returns a config snippet for an unmapped address whose shape
// is recognised. The trailing number of the address, when it fits, becomes
// the note or CC number.
func suggestEntry(address string) (string, bool) {
	for _, rule := range suggestRules {
		sub := rule.re.FindStringSubmatch(address)
		if sub == nil {
			continue
		}
		control := 0
		if len(sub) > 1 {
			if n, err := strconv.Atoi(sub[1]); err == nil && n <= 127 {
				control = n
			}
		}
		out, err := yaml.Marshal([]MappingEntry{templateFor(address, rule.kind, control)})
		if err != nil {
			logger.Debug("translate: cannot render suggestion", "address", address, "err", err)
			return "", false
		}
		return string(out), true
	}
	return "", false
}

func templateFor(address string, kind Kind, control int) MappingEntry {
	e := MappingEntry{OSCAddress: address, Type: kind.String(), Channel: intVal(0)}
	switch kind {
	case NoteToggle:
		e.Note = intVal(control)
	case AbsoluteControl:
		e.Control = intVal(control)
		e.ValueMap = &ValueMap{InMin: floatPtr(0), InMax: floatPtr(1), OutMin: intVal(0), OutMax: intVal(127)}
	default:
		e.Control = intVal(control)
	}
	return e
}
