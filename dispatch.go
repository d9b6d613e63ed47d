package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hypebeast/go-osc/osc"
)

// Event results recorded in metrics.
const (
	resultSent      = "sent"
	resultUnmapped  = "unmapped"
	resultInvalid   = "invalid"
	resultSendError = "send_error"
)

// Bridge is the per-message handler between the OSC listener and the MIDI
// sink. Nothing it does is fatal: unmapped addresses, bad arguments and sink
// failures are logged and counted, and the next message is handled normally.
type Bridge struct {
	translator *Translator
	sink       Sink
	metrics    *Metrics

	suggested sync.Map // address -> struct{}, unmapped addresses already reported
}

func NewBridge(translator *Translator, sink Sink, metrics *Metrics) *Bridge {
	return &Bridge{translator: translator, sink: sink, metrics: metrics}
}

// HandleMessage translates one OSC message and forwards the result.
func (b *Bridge) HandleMessage(msg *osc.Message) {
	logger.Debug("osc: received", "address", msg.Address, "args", msg.Arguments)

	out, err := b.translator.Translate(msg.Address, msg.Arguments)
	switch {
	case errors.Is(err, ErrUnmappedAddress):
		b.record(resultUnmapped)
		b.reportUnmapped(msg.Address)
		return
	case err != nil:
		b.record(resultInvalid)
		logger.Warn("translate: value not mapped", "address", msg.Address, "err", err)
		return
	}

	if err := b.sink.Send(out); err != nil {
		b.record(resultSendError)
		logger.Error("midi: send failed", "address", msg.Address, "msg", out.String(), "err", err)
		return
	}
	b.record(resultSent)
	if b.metrics != nil {
		b.metrics.RecordMessage(out)
	}
	logger.Debug("midi: sent", "address", msg.Address, "msg", out.String(), "bytes", fmt.Sprintf("% X", []byte(out)))
}

// reportUnmapped logs an unmapped address at info level the first time it is
// seen (with a template entry when the address shape is recognised) and at
// debug level afterwards.
func (b *Bridge) reportUnmapped(address string) {
	if _, seen := b.suggested.LoadOrStore(address, struct{}{}); seen {
		logger.Debug("translate: no mapping found", "address", address)
		return
	}
	if tmpl, ok := suggestEntry(address); ok {
		logger.Info("translate: no mapping found", "address", address, "suggested_entry", tmpl)
		return
	}
	logger.Info("translate: no mapping found", "address", address)
}

func (b *Bridge) record(result string) {
	if b.metrics != nil {
		b.metrics.RecordEvent(result)
	}
}
