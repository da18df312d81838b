package session

import (
	"errors"
	"fmt"

	"cellviewer/pkg/interval"
	"cellviewer/pkg/stack"
)

var (
	// ErrIOFailure covers unreadable, unwritable and malformed files
	ErrIOFailure = errors.New("i/o failure")

	// ErrInvalidStackShape is returned for shapes that are not a frame sequence
	ErrInvalidStackShape = stack.ErrInvalidShape

	// ErrUnsupportedChannelCount is returned for stacks with neither 1 nor 3 channels
	ErrUnsupportedChannelCount = stack.ErrUnsupportedChannelCount

	// ErrNoStackLoaded is returned by operations that need a stack
	ErrNoStackLoaded = errors.New("no stack loaded")

	// ErrNoIntervalMarked is returned when exporting without both bounds set
	ErrNoIntervalMarked = errors.New("no interval marked")

	// ErrOutOfRange is returned for frame or channel indices outside the stack
	ErrOutOfRange = errors.New("index out of range")

	// ErrFormatMismatch is returned when an export destination names a
	// different container format than the source stack
	ErrFormatMismatch = errors.New("destination format differs from source")

	// ErrCorruptSidecar is returned for interval sidecars that cannot be used
	ErrCorruptSidecar = interval.ErrCorruptSidecar

	// ErrPersist is returned when the interval sidecar cannot be written
	ErrPersist = interval.ErrPersist
)

// LoadError reports a failed Load
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ExportError reports a failed ExportInterval
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export: %v", e.Err)
	}
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IntervalError reports a rejected mark or a sidecar problem
type IntervalError struct {
	// Op is the interval operation, e.g. "mark start" or "save"
	Op  string
	Err error
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IntervalError) Unwrap() error {
	return e.Err
}

// classifyLoad maps a codec failure onto the load taxonomy. Shape errors keep
// their sentinel; everything else is an I/O failure.
func classifyLoad(err error) error {
	if errors.Is(err, ErrInvalidStackShape) || errors.Is(err, ErrUnsupportedChannelCount) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIOFailure, err)
}
