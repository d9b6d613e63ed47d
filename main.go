package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug, asJSON bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

func main() {
	configPath := flag.String("config", "", "YAML config file (built-in Tangent example mappings when empty)")
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	logJSON := flag.Bool("log-json", false, "log as JSON instead of text")
	listen := flag.String("listen", defaultListen, "OSC UDP listen address")
	output := flag.String("output", string(OutputVirtual), "MIDI output: virtual, port, serial or log")
	portName := flag.String("port-name", defaultPortName, "virtual port name, or name pattern in port mode")
	serialDev := flag.String("serial", "", "serial device for -output serial")
	baud := flag.Int("baud", dinMIDIBaud, "serial baud rate")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address")
	invert := flag.Bool("invert", false, "invert relative encoder direction for entries without their own setting")
	check := flag.Bool("check", false, "validate the config, print the mapping table and exit")
	probe := flag.String("probe", "", "send ADDRESS=VALUE to the listen address and exit")
	flag.Parse()

	initLogger(*debug, *logJSON)

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfig(*configPath)
		if err != nil {
			logger.Error("config: load failed", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags given explicitly override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.OSC.Listen = *listen
		case "output":
			cfg.MIDI.Output = OutputMode(*output)
		case "port-name":
			cfg.MIDI.PortName = *portName
		case "serial":
			cfg.MIDI.SerialDevice = *serialDev
		case "baud":
			cfg.MIDI.SerialBaud = *baud
		case "metrics":
			cfg.Metrics.Listen = *metricsAddr
		case "invert":
			cfg.Relative.Invert = *invert
		}
	})
	if err := cfg.validate(); err != nil {
		logger.Error("config: invalid", "err", err)
		os.Exit(1)
	}

	if *probe != "" {
		addr, value, err := parseProbe(*probe)
		if err == nil {
			err = sendProbe(cfg.OSC.Listen, addr, value)
		}
		if err != nil {
			logger.Error("probe failed", "err", err)
			os.Exit(1)
		}
		return
	}

	table, err := LoadMappings(cfg.Mappings, cfg.Relative.Invert)
	if err != nil {
		logger.Error("config: mappings invalid", "err", err)
		os.Exit(1)
	}

	if *check {
		printTable(table)
		return
	}

	logger.Info("osc-midi bridge starting",
		"config", *configPath,
		"listen", cfg.OSC.Listen,
		"output", cfg.MIDI.Output,
		"port_name", cfg.MIDI.PortName,
		"mappings", table.Len(),
		"relative_invert", cfg.Relative.Invert,
		"debug", *debug,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, table); err != nil {
		logger.Error("bridge stopped", "err", err)
		stop()
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// run owns every resource of a running bridge and releases them on return,
// whether ctx was cancelled or the listener failed.
func run(ctx context.Context, cfg *Config, table *MappingTable) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink, err := openSink(ctx, cfg.MIDI)
	if err != nil {
		return err
	}
	defer func() {
		cancel() // stop the port watcher before its driver goes away
		if err := sink.Close(); err != nil {
			logger.Warn("midi: close failed", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)
	metrics.SetMappings(table.Len())
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.Error("metrics: endpoint failed", "err", err)
			}
		}()
	}

	bridge := NewBridge(NewTranslator(table, NewEncoderStore()), sink, metrics)
	ln := &Listener{Addr: cfg.OSC.Listen, Handler: bridge.HandleMessage}

	logger.Info("running, press Ctrl+C to exit")
	return ln.ListenAndServe(ctx)
}

// parseProbe splits "ADDRESS=VALUE".
func parseProbe(s string) (string, float64, error) {
	addr, raw, ok := strings.Cut(s, "=")
	if !ok || addr == "" {
		return "", 0, errors.New("probe: want ADDRESS=VALUE")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", 0, fmt.Errorf("probe: value %q: %w", raw, err)
	}
	return addr, v, nil
}

func printTable(t *MappingTable) {
	for _, m := range t.Mappings() {
		switch m.Kind {
		case AbsoluteControl:
			fmt.Printf("%-32s %-12s ch=%-2d cc=%-3d in=[%g,%g] out=[%d,%d]\n",
				m.Address, m.Kind, m.Channel, m.Control, m.Range.InMin, m.Range.InMax, m.Range.OutMin, m.Range.OutMax)
		case RelativeControl:
			fmt.Printf("%-32s %-12s ch=%-2d cc=%-3d invert=%t\n", m.Address, m.Kind, m.Channel, m.Control, m.Invert)
		default:
			fmt.Printf("%-32s %-12s ch=%-2d note=%d\n", m.Address, m.Kind, m.Channel, m.Control)
		}
	}
	fmt.Printf("%d mappings OK\n", t.Len())
}
