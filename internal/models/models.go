package models

import (
	"fmt"
	"image"
)

// StackSummary describes a loaded stack
type StackSummary struct {
	// Path is the file the stack was read from
	Path string

	// Format is the container format, "tiff" or "npy"
	Format string

	// Frames, Height, Width and Channels are the stack dimensions
	Frames   int
	Height   int
	Width    int
	Channels int

	// DType is the sample type the stack is stored with
	DType string

	// Layout is the axis order of the source container
	Layout string
}

func (s StackSummary) String() string {
	return fmt.Sprintf("%d frames, %dx%d, %d channel(s), %s", s.Frames, s.Width, s.Height, s.Channels, s.DType)
}

// FrameUpdate is emitted whenever the displayed frame changes
type FrameUpdate struct {
	// Display is the normalized 8-bit image of the selected channel
	Display *image.Gray

	// Frame is the zero-based index of the displayed frame
	Frame int

	// Frames is the total number of frames
	Frames int

	// Channel is the selected channel
	Channel int
}

// StatusUpdate carries the outcome message of an operation
type StatusUpdate struct {
	Message string

	// Err is set when the message reports a failure
	Err error
}

// StackUpdate is emitted when a stack is loaded or discarded
type StackUpdate struct {
	HasStack bool

	// MinFrame and MaxFrame bound the valid frame indices; -1 without a stack
	MinFrame int
	MaxFrame int

	Summary StackSummary
}

// IntervalUpdate is emitted when the marked interval changes.
// Unset bounds are -1.
type IntervalUpdate struct {
	Start int
	End   int
}

// Complete reports whether both bounds are set
func (u IntervalUpdate) Complete() bool {
	return u.Start >= 0 && u.End >= 0
}
