package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputMode selects the MIDI sink.
type OutputMode string

const (
	OutputVirtual OutputMode = "virtual" // create a virtual port
	OutputPort    OutputMode = "port"    // connect to an existing port, with hot-plug
	OutputSerial  OutputMode = "serial"  // raw bytes to a UART
	OutputLog     OutputMode = "log"     // dry run
)

const (
	defaultListen   = "0.0.0.0:9000"
	defaultPortName = "Tangent Elements Bridge"
)

// Config is the whole bridge configuration.
type Config struct {
	OSC      OSCConfig      `yaml:"osc"`
	MIDI     MIDIConfig     `yaml:"midi"`
	Relative RelativeConfig `yaml:"relative"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Mappings []MappingEntry `yaml:"mappings"`
}

type OSCConfig struct {
	Listen string `yaml:"listen"`
}

type MIDIConfig struct {
	Output       OutputMode `yaml:"output"`
	PortName     string     `yaml:"port_name"`
	PortPatterns []string   `yaml:"port_patterns"`
	SerialDevice string     `yaml:"serial_device"`
	SerialBaud   int        `yaml:"serial_baud"`
}

// RelativeConfig holds encoder calibration. Receiving applications disagree
// on which turn direction should raise the value, so the sign is a setting.
type RelativeConfig struct {
	Invert bool `yaml:"invert"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// portPatterns is the ordered list of name substrings used in port mode. The
// default port_name names the bridge's own virtual port and is not a pattern.
func (m MIDIConfig) portPatterns() []string {
	var out []string
	if m.PortName != "" && m.PortName != defaultPortName {
		out = append(out, m.PortName)
	}
	return append(out, m.PortPatterns...)
}

func floatPtr(v float64) *float64 { return &v }

// DefaultConfig returns the settings used when no config file is given: a
// virtual port and the Tangent Elements example mappings.
func DefaultConfig() *Config {
	return &Config{
		OSC: OSCConfig{Listen: defaultListen},
		MIDI: MIDIConfig{
			Output:     OutputVirtual,
			PortName:   defaultPortName,
			SerialBaud: dinMIDIBaud,
		},
		Mappings: []MappingEntry{
			{OSCAddress: "/tangent/bt/A/press", Type: typeNoteOnOff, Channel: intVal(0), Note: intVal(60)},
			{OSCAddress: "/tangent/kn/A/delta", Type: typeCCRelative, Channel: intVal(0), Control: intVal(20)},
			{OSCAddress: "/tangent/wh/A/delta", Type: typeCCRelative, Channel: intVal(0), Control: intVal(21)},
			{
				OSCAddress: "/tangent/sl/A/value", Type: typeCCAbsolute, Channel: intVal(0), Control: intVal(22),
				ValueMap: &ValueMap{InMin: floatPtr(0), InMax: floatPtr(1), OutMin: intVal(0), OutMax: intVal(127)},
			},
		},
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML document on top of the default settings. The
// example mappings are only used when no config file is given. Unknown keys
// are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Mappings = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	bad := func(field, detail string) error {
		return &ConfigError{Index: -1, Field: field, Err: fmt.Errorf("%w: %s", ErrBadConfig, detail)}
	}

	if c.OSC.Listen == "" {
		return &ConfigError{Index: -1, Field: "osc.listen", Err: ErrMissingField}
	}
	switch c.MIDI.Output {
	case OutputVirtual:
		if c.MIDI.PortName == "" {
			return &ConfigError{Index: -1, Field: "midi.port_name", Err: ErrMissingField}
		}
	case OutputPort, OutputLog:
	case OutputSerial:
		if c.MIDI.SerialDevice == "" {
			return &ConfigError{Index: -1, Field: "midi.serial_device", Err: ErrMissingField}
		}
		if c.MIDI.SerialBaud <= 0 {
			return bad("midi.serial_baud", fmt.Sprintf("%d", c.MIDI.SerialBaud))
		}
	default:
		return bad("midi.output", fmt.Sprintf("%q (want virtual, port, serial or log)", c.MIDI.Output))
	}
	return nil
}
