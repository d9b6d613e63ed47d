package main

import (
	"errors"
	"fmt"
)

var (
	// ErrUnmappedAddress is returned by the translator when no mapping exists
	// for an incoming OSC address. It is never fatal.
	ErrUnmappedAddress = errors.New("no mapping found")

	// ErrInvalidArgument is wrapped by every *InvalidArgumentError.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSinkUnavailable is returned by a MIDI sink that currently has no
	// connected output (for example a hot-plugged port that went away).
	ErrSinkUnavailable = errors.New("midi output unavailable")
)

// Configuration sentinels, wrapped by *ConfigError.
var (
	ErrMissingField = errors.New("missing required field")
	ErrMissingRange = errors.New("missing value_map bound")
	ErrOutOfRange   = errors.New("value out of range")
	ErrUnknownType  = errors.New("unknown mapping type")
	ErrBadConfig    = errors.New("invalid setting")
)

// ConfigError describes a structural problem found while loading the
// configuration. Index is the position of the offending mapping entry, or -1
// for settings outside the mapping list.
type ConfigError struct {
	Index   int
	Address string
	Field   string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}
	if e.Address == "" {
		return fmt.Sprintf("config: mappings[%d] %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("config: mappings[%d] (%s) %s: %v", e.Index, e.Address, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InvalidArgumentError reports an OSC argument that is missing, of an
// unsupported type, or outside the domain accepted by its mapping.
type InvalidArgumentError struct {
	Address string
	Value   interface{}
	Reason  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Address, e.Value, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }
