package main

import "gitlab.com/gomidi/midi/v2"

const (
	statusNoteOff       = 0x80
	statusNoteOn        = 0x90
	statusControlChange = 0xB0

	// NoteToggle presses are always sent at full velocity.
	pressVelocity = 127
)

// Every message the bridge emits is a 3-byte channel message:
//
//	[status|channel][data1][data2]

func noteOn(channel, key uint8) midi.Message {
	return midi.NoteOn(channel, key, pressVelocity)
}

func noteOff(channel, key uint8) midi.Message {
	return midi.NoteOff(channel, key)
}

func controlChange(channel, controller, value uint8) midi.Message {
	return midi.ControlChange(channel, controller, value)
}

// messageKind names the message type for metrics and logs.
func messageKind(msg []byte) string {
	if len(msg) == 0 {
		return "empty"
	}
	switch msg[0] & 0xF0 {
	case statusNoteOff:
		return "note_off"
	case statusNoteOn:
		return "note_on"
	case statusControlChange:
		return "control_change"
	}
	return "other"
}
