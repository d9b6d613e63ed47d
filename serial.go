package main

import (
	"fmt"

	"go.bug.st/serial"
)

// dinMIDIBaud is the MIDI 1.0 DIN line rate. USB-serial bridges such as
// Hairless MIDI usually run at 115200 instead.
const dinMIDIBaud = 31250

// SerialPort writes MIDI bytes straight to a UART.
type SerialPort struct {
	port   serial.Port
	device string
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s at %d baud: %w", name, baud, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return &SerialPort{port: p, device: name}, nil
}

// Send writes one MIDI message to the port.
func (s *SerialPort) Send(msg []byte) error {
	if len(msg) == 0 {
		return nil
	}
	n, err := s.port.Write(msg)
	if err != nil {
		return fmt.Errorf("serial: write %s: %w", s.device, err)
	}
	if n != len(msg) {
		return fmt.Errorf("serial: short write to %s: %d of %d bytes", s.device, n, len(msg))
	}
	logger.Debug("serial: message sent", "bytes", n, "kind", messageKind(msg))
	return nil
}

// Close closes the underlying serial port.
func (s *SerialPort) Close() error {
	logger.Info("serial: closing port", "device", s.device)
	return s.port.Close()
}
