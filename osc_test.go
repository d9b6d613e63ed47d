package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

// startListener serves on a loopback port and returns a connected client
// socket plus the channel every handled message lands on.
func startListener(t *testing.T, handler func(*osc.Message)) (net.Conn, <-chan *osc.Message, context.CancelFunc, <-chan error) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan *osc.Message, 64)
	l := &Listener{Handler: func(m *osc.Message) {
		if handler != nil {
			handler(m)
		}
		got <- m
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, pc) }()

	conn, err := net.Dial("udp", pc.LocalAddr().String())
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return conn, got, cancel, done
}

func sendPacket(t *testing.T, conn net.Conn, p osc.Packet) {
	t.Helper()
	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(data); err != nil {
		t.Fatal(err)
	}
}

func receive(t *testing.T, ch <-chan *osc.Message) *osc.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OSC message")
		return nil
	}
}

func TestListenerDeliversInOrder(t *testing.T) {
	conn, got, _, _ := startListener(t, nil)

	for i := int32(0); i < 20; i++ {
		sendPacket(t, conn, osc.NewMessage("/kn/a", i))
	}
	for i := int32(0); i < 20; i++ {
		m := receive(t, got)
		if m.Address != "/kn/a" {
			t.Fatalf("address = %q", m.Address)
		}
		if v, ok := m.Arguments[0].(int32); !ok || v != i {
			t.Fatalf("message %d carried %v", i, m.Arguments[0])
		}
	}
}

func TestListenerSkipsMalformedPackets(t *testing.T) {
	conn, got, _, _ := startListener(t, nil)

	for _, junk := range [][]byte{
		{0x00},
		[]byte("not osc at all"),
		[]byte("/a\x00\x00,i\x00\x00"), // int tag without payload
	} {
		if _, err := conn.Write(junk); err != nil {
			t.Fatal(err)
		}
	}
	sendPacket(t, conn, osc.NewMessage("/after", float32(1)))

	if m := receive(t, got); m.Address != "/after" {
		t.Errorf("first delivered message = %q, want /after", m.Address)
	}
}

func TestListenerFlattensBundles(t *testing.T) {
	conn, got, _, _ := startListener(t, nil)

	bundle := osc.NewBundle(time.Now())
	if err := bundle.Append(osc.NewMessage("/b/1", int32(1))); err != nil {
		t.Fatal(err)
	}
	if err := bundle.Append(osc.NewMessage("/b/2", int32(2))); err != nil {
		t.Fatal(err)
	}
	sendPacket(t, conn, bundle)

	for _, want := range []string{"/b/1", "/b/2"} {
		if m := receive(t, got); m.Address != want {
			t.Errorf("address = %q, want %q", m.Address, want)
		}
	}
}

func TestListenerSurvivesHandlerPanic(t *testing.T) {
	conn, got, _, _ := startListener(t, func(m *osc.Message) {
		if m.Address == "/panic" {
			panic("handler failure")
		}
	})

	sendPacket(t, conn, osc.NewMessage("/panic", int32(1)))
	sendPacket(t, conn, osc.NewMessage("/fine", int32(1)))

	if m := receive(t, got); m.Address != "/fine" {
		t.Errorf("address = %q, want /fine", m.Address)
	}
}

func TestListenerStopsOnCancel(t *testing.T) {
	_, _, cancel, done := startListener(t, nil)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestListenerDrivesBridge(t *testing.T) {
	sink := &recordingSink{}
	b, _ := newTestBridge(t, sink)
	conn, got, _, _ := startListener(t, b.HandleMessage)

	for _, d := range []int32{5, -3, 100} {
		sendPacket(t, conn, osc.NewMessage(addrKnob, d))
		receive(t, got)
	}
	msgs := sink.messages()
	want := []byte{69, 66, 127}
	if len(msgs) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(msgs), len(want))
	}
	for i, v := range want {
		if msgs[i][2] != v {
			t.Errorf("message %d value = %d, want %d", i, msgs[i][2], v)
		}
	}
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		in      string
		addr    string
		value   float64
		wantErr bool
	}{
		{"/sl/a=0.5", "/sl/a", 0.5, false},
		{"/kn/a=-3", "/kn/a", -3, false},
		{"/sl/a", "", 0, true},
		{"=1", "", 0, true},
		{"/sl/a=half", "", 0, true},
	}
	for _, tt := range tests {
		addr, v, err := parseProbe(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseProbe(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if addr != tt.addr || v != tt.value {
			t.Errorf("parseProbe(%q) = %q, %v; want %q, %v", tt.in, addr, v, tt.addr, tt.value)
		}
	}
}

func TestSendProbeReachesListener(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan *osc.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := &Listener{Handler: func(m *osc.Message) { got <- m }}
	go l.Serve(ctx, pc)

	if err := sendProbe(pc.LocalAddr().String(), "/sl/a", 0.25); err != nil {
		t.Fatalf("sendProbe() error = %v", err)
	}
	m := receive(t, got)
	if v, ok := m.Arguments[0].(float32); m.Address != "/sl/a" || !ok || v != 0.25 {
		t.Errorf("probe arrived as %s %v", m.Address, m.Arguments)
	}
}
