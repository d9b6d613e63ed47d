package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// -------------------- Hot-swap config --------------------

// excludedPatterns: virtual/system ports that are never auto-connected.
var excludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

const midiRescanInterval = 1000 * time.Millisecond

// -------------------- OutputWatcher --------------------

// OutputWatcher keeps a connection to an existing MIDI output port chosen by
// name pattern. It handles hot-plug (port appears) and hot-unplug (port
// disappears or a write fails) transparently. While no port is connected,
// Send returns ErrSinkUnavailable.
type OutputWatcher struct {
	mu           sync.Mutex
	drv          *rtmididrv.Driver
	out          drivers.Out
	connected    bool
	selectedName string
	lastRescanAt time.Time
	closed       bool

	patterns []string
}

// NewOutputWatcher creates a watcher and initialises the underlying rtmidi
// driver. With no patterns, the only non-excluded port is picked when there
// is exactly one. Call Close() when done.
func NewOutputWatcher(patterns []string) (*OutputWatcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &OutputWatcher{drv: drv, patterns: patterns}, nil
}

// Send writes msg to the connected port.
func (w *OutputWatcher) Send(msg []byte) error {
	if len(msg) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return ErrSinkUnavailable
	}
	if err := w.out.Send(msg); err != nil {
		name := w.selectedName
		logger.Warn("midi: write failed, dropping port", "port", name, "err", err)
		w.closeConn()
		w.lastRescanAt = time.Time{} // rescan immediately next tick
		return fmt.Errorf("midi: send to %q: %w", name, err)
	}
	return nil
}

// Close shuts down the active connection and the rtmidi driver. Later Tick
// calls do nothing.
func (w *OutputWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.closeConn()
	if w.drv != nil {
		w.drv.Close()
	}
	return nil
}

// Run calls Tick once per rescan interval until ctx is cancelled.
func (w *OutputWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(midiRescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick scans for ports, connects to a preferred one, and detects
// disappearances.
func (w *OutputWatcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	now := time.Now()
	if !w.lastRescanAt.IsZero() && now.Sub(w.lastRescanAt) < midiRescanInterval {
		return
	}
	w.lastRescanAt = now

	outputs := w.listOutputs()

	if w.connected {
		for _, n := range outputs {
			if n == w.selectedName {
				return // still there, nothing to do
			}
		}
		logger.Warn("midi: output disappeared", "port", w.selectedName)
		w.closeConn()
		w.lastRescanAt = time.Time{}
		return
	}

	cand, ok := pickPreferred(w.patterns, outputs)
	if !ok {
		logger.Debug("midi: no matching output", "available", strings.Join(outputs, ", "))
		return
	}
	if err := w.openByName(cand); err != nil {
		logger.Error("midi: connect failed", "port", cand, "err", err)
	}
}

// Connected reports the name of the connected port, if any.
func (w *OutputWatcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedName, w.connected
}

// -------------------- internal --------------------

func (w *OutputWatcher) listOutputs() []string {
	outs, err := w.drv.Outs()
	if err != nil {
		logger.Error("midi: list outputs failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	names = filterExcluded(names, excludedPatterns)
	logger.Debug("midi: outputs found", "count", len(names), "ports", strings.Join(names, ", "))
	return names
}

func (w *OutputWatcher) closeConn() {
	if w.out != nil {
		_ = w.out.Close()
		w.out = nil
	}
	w.connected = false
	w.selectedName = ""
}

func (w *OutputWatcher) openByName(name string) error {
	outs, err := w.drv.Outs()
	if err != nil {
		return err
	}
	var found drivers.Out
	for _, out := range outs {
		if out.String() == name {
			found = out
			break
		}
	}
	if found == nil {
		return fmt.Errorf("output %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	w.out = found
	w.connected = true
	w.selectedName = name
	logger.Info("midi: connected", "port", name)
	return nil
}

// -------------------- utility --------------------

func filterExcluded(names, excluded []string) []string {
	var kept []string
	for _, name := range names {
		skip := false
		for _, pat := range excluded {
			if containsCI(name, pat) {
				skip = true
				break
			}
		}
		if skip {
			logger.Debug("midi: port excluded", "port", name)
			continue
		}
		kept = append(kept, name)
	}
	return kept
}

// pickPreferred returns the first port matching the earliest pattern. With no
// patterns, a lone port is picked.
func pickPreferred(patterns, names []string) (string, bool) {
	for _, pat := range patterns {
		for _, name := range names {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(patterns) == 0 && len(names) == 1 {
		return names[0], true
	}
	return "", false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
