package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec // OSC events by result
	messages *prometheus.CounterVec // MIDI messages sent by kind
	mappings prometheus.Gauge       // size of the mapping table
}

// NewMetrics registers the bridge collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oscmidi_events_total",
			Help: "OSC messages handled, by result (sent, unmapped, invalid, send_error)",
		}, []string{"result"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oscmidi_midi_messages_total",
			Help: "MIDI messages delivered to the sink, by kind",
		}, []string{"kind"}),
		mappings: f.NewGauge(prometheus.GaugeOpts{
			Name: "oscmidi_mappings",
			Help: "Number of OSC addresses in the mapping table",
		}),
	}
}

func (m *Metrics) RecordEvent(result string) {
	m.events.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordMessage(msg []byte) {
	m.messages.WithLabelValues(messageKind(msg)).Inc()
}

func (m *Metrics) SetMappings(n int) {
	m.mappings.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics: serving", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
