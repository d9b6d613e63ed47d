package main

import (
	"context"
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Sink accepts raw MIDI bytes. Sending an empty message is a no-op.
type Sink interface {
	Send(msg []byte) error
	Close() error
}

// openSink acquires the output selected by cfg. The caller owns the returned
// sink and must Close it; port mode also starts the hot-plug watcher, which
// stops with ctx.
func openSink(ctx context.Context, cfg MIDIConfig) (Sink, error) {
	switch cfg.Output {
	case OutputVirtual:
		return openVirtualSink(cfg.PortName)
	case OutputPort:
		w, err := NewOutputWatcher(cfg.portPatterns())
		if err != nil {
			return nil, err
		}
		w.Tick()
		go w.Run(ctx)
		return w, nil
	case OutputSerial:
		return OpenSerial(cfg.SerialDevice, cfg.SerialBaud)
	case OutputLog:
		logger.Info("midi: dry run, messages are logged only")
		return logSink{}, nil
	}
	return nil, fmt.Errorf("midi: unknown output mode %q", cfg.Output)
}

// virtualSink is a virtual output port other applications can connect to.
type virtualSink struct {
	drv  *rtmididrv.Driver
	out  drivers.Out
	name string
}

func openVirtualSink(name string) (*virtualSink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	out, err := drv.OpenVirtualOut(name)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: create virtual port %q: %w", name, err)
	}
	logger.Info("midi: virtual port created", "port", name)
	return &virtualSink{drv: drv, out: out, name: name}, nil
}

func (v *virtualSink) Send(msg []byte) error {
	if len(msg) == 0 {
		return nil
	}
	if err := v.out.Send(msg); err != nil {
		return fmt.Errorf("midi: send to %q: %w", v.name, err)
	}
	return nil
}

func (v *virtualSink) Close() error {
	logger.Info("midi: closing virtual port", "port", v.name)
	err := v.out.Close()
	v.drv.Close()
	return err
}

// logSink only logs what would have been sent.
type logSink struct{}

func (logSink) Send(msg []byte) error {
	if len(msg) == 0 {
		return nil
	}
	logger.Info("midi: dry run", "kind", messageKind(msg), "bytes", fmt.Sprintf("% X", msg))
	return nil
}

func (logSink) Close() error { return nil }
