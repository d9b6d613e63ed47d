package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

// maxPacketSize is the largest UDP payload we accept.
const maxPacketSize = 65535

// Listener receives OSC packets over UDP and hands every message to Handler.
// Packets are read and dispatched by a single goroutine, so messages reach
// Handler in arrival order. Bundle timetags are ignored; bundle contents are
// dispatched immediately, messages first, then nested bundles.
type Listener struct {
	Addr    string
	Handler func(msg *osc.Message)
}

// ListenAndServe binds Addr and serves until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	c, err := net.ListenPacket("udp", l.Addr)
	if err != nil {
		return fmt.Errorf("osc: listen %s: %w", l.Addr, err)
	}
	logger.Info("osc: listening", "addr", c.LocalAddr().String())
	return l.Serve(ctx, c)
}

// Serve reads packets from c until ctx is cancelled or a permanent read error
// occurs. c is closed when Serve returns. Cancellation is not an error.
func (l *Listener) Serve(ctx context.Context, c net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	buf := make([]byte, maxPacketSize)
	var tempDelay time.Duration
	for {
		n, from, err := c.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("osc: listener stopped")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				logger.Warn("osc: read error, retrying", "err", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("osc: read: %w", err)
		}
		tempDelay = 0

		packet, err := parsePacket(buf[:n])
		if err != nil {
			logger.Warn("osc: dropping malformed packet", "from", addrString(from), "bytes", n, "err", err)
			continue
		}
		l.dispatch(packet, from)
	}
}

// parsePacket decodes one datagram. Decoder panics on hostile input are
// turned into errors.
func parsePacket(b []byte) (p osc.Packet, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("decode panic: %v", r)
		}
	}()
	if len(b) == 0 {
		return nil, errors.New("empty packet")
	}
	return osc.ParsePacket(string(b))
}

func (l *Listener) dispatch(packet osc.Packet, from net.Addr) {
	defer func() {
		if err := recover(); err != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Error("osc: panic handling packet", "from", addrString(from), "err", err, "stack", string(buf))
		}
	}()

	switch p := packet.(type) {
	case *osc.Message:
		l.Handler(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			l.Handler(m)
		}
		for _, b := range p.Bundles {
			l.dispatch(b, from)
		}
	default:
		logger.Warn("osc: unknown packet type", "from", addrString(from), "type", fmt.Sprintf("%T", p))
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// sendProbe sends a single OSC message carrying value as float32 to the
// bridge listening on listenAddr. A wildcard host is replaced by loopback.
func sendProbe(listenAddr, address string, value float64) error {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("probe: port %q: %w", portStr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	msg := osc.NewMessage(address, float32(value))
	client := osc.NewClient(host, port)
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("probe: send to %s:%d: %w", host, port, err)
	}
	logger.Info("osc: probe sent", "target", net.JoinHostPort(host, portStr), "address", address, "value", value)
	return nil
}
