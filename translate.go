package main

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"
)

// maxDelta bounds a relative delta before integer conversion; anything larger
// already saturates the 0-127 range.
const maxDelta = 128

// Translator turns OSC events into MIDI messages. The mapping table is shared
// read-only; encoder state lives in the injected EncoderStore.
type Translator struct {
	table    *MappingTable
	encoders *EncoderStore
}

func NewTranslator(table *MappingTable, encoders *EncoderStore) *Translator {
	return &Translator{table: table, encoders: encoders}
}

// Translate converts one OSC event. It returns either a 3-byte message or an
// error wrapping ErrUnmappedAddress or ErrInvalidArgument; both are
// recoverable and mean nothing should be sent.
func (t *Translator) Translate(address string, args []interface{}) (midi.Message, error) {
	m, ok := t.table.Lookup(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnmappedAddress, address)
	}

	v, err := numericArg(address, args)
	if err != nil {
		return nil, err
	}

	switch m.Kind {
	case NoteToggle:
		return translateNote(m, v)
	case AbsoluteControl:
		return controlChange(m.Channel, m.Control, scaleAbsolute(m.Range, v)), nil
	case RelativeControl:
		return t.translateRelative(m, v), nil
	}
	return nil, fmt.Errorf("%s: unhandled mapping kind %d", address, m.Kind)
}

// numericArg normalizes the first OSC argument to a float64. Only int32,
// int64, float32 and float64 are accepted; int is allowed for callers that
// build argument lists by hand.
func numericArg(address string, args []interface{}) (float64, error) {
	if len(args) == 0 {
		return 0, &InvalidArgumentError{Address: address, Value: nil, Reason: "no arguments"}
	}

	var v float64
	switch a := args[0].(type) {
	case int32:
		v = float64(a)
	case int64:
		v = float64(a)
	case int:
		v = float64(a)
	case float32:
		v = float64(a)
	case float64:
		v = a
	default:
		return 0, &InvalidArgumentError{Address: address, Value: a, Reason: fmt.Sprintf("unsupported argument type %T", a)}
	}
	if !isFinite(v) {
		return 0, &InvalidArgumentError{Address: address, Value: v, Reason: "not a finite number"}
	}
	return v, nil
}

// translateNote accepts exactly 1 (press) or 0 (release).
func translateNote(m Mapping, v float64) (midi.Message, error) {
	switch v {
	case 1:
		return noteOn(m.Channel, m.Control), nil
	case 0:
		return noteOff(m.Channel, m.Control), nil
	}
	return nil, &InvalidArgumentError{Address: m.Address, Value: v, Reason: "note toggle expects 0 or 1"}
}

// scaleAbsolute maps v linearly from [InMin, InMax] onto [OutMin, OutMax],
// rounding half away from zero and clamping after rounding.
//
// A degenerate input range is a step: OutMin when v <= InMin, else OutMax.
func scaleAbsolute(r Range, v float64) uint8 {
	if r.InMin == r.InMax {
		if v <= r.InMin {
			return r.OutMin
		}
		return r.OutMax
	}
	if r.OutMin == r.OutMax {
		return r.OutMin
	}

	span := float64(int(r.OutMax) - int(r.OutMin))
	scaled := (v-r.InMin)/(r.InMax-r.InMin)*span + float64(r.OutMin)

	lo, hi := r.OutMin, r.OutMax
	if lo > hi {
		lo, hi = hi, lo
	}
	rounded := math.Round(scaled)
	switch {
	case math.IsNaN(rounded):
		return r.OutMin
	case rounded < float64(lo):
		return lo
	case rounded > float64(hi):
		return hi
	}
	return uint8(rounded)
}

func (t *Translator) translateRelative(m Mapping, v float64) midi.Message {
	delta := math.Round(v)
	if m.Invert {
		delta = -delta
	}
	delta = math.Max(-maxDelta, math.Min(maxDelta, delta))

	value := t.encoders.Apply(m.Channel, m.Control, int(delta))
	logger.Debug("translate: encoder moved", "address", m.Address, "delta", int(delta), "value", value)
	return controlChange(m.Channel, m.Control, value)
}
