// Package stack holds the in-memory representation of an image stack: an
// ordered sequence of frames sharing one height, width and channel count.
package stack

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShape is returned for shapes that are not a frame sequence
	// of 2-D images (rank other than 3 or 4, or an empty dimension).
	ErrInvalidShape = errors.New("invalid stack shape")

	// ErrUnsupportedChannelCount is returned for 4-D shapes whose channel
	// axis does not hold exactly 3 channels.
	ErrUnsupportedChannelCount = errors.New("unsupported channel count")
)

// RGBChannels is the only multi-channel count a stack may carry.
const RGBChannels = 3

// DType names the sample type a stack was stored with. Samples are held as
// float64; 64-bit integer stacks are only accepted when every sample fits
// in MaxExactInt.
type DType string

const (
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Uint32  DType = "uint32"
	Int8    DType = "int8"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Uint64  DType = "uint64"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// Size returns the number of bytes one sample occupies
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Valid reports whether d is a known sample type
func (d DType) Valid() bool {
	return d.Size() > 0
}

// MaxExactInt is the largest integer magnitude float64 holds exactly
const MaxExactInt = 1 << 53

// Layout records the axis order of the container the stack came from, so
// that exports are written back in the same convention.
type Layout int

const (
	// Planar is (frames, height, width)
	Planar Layout = iota
	// ChannelsLast is (frames, height, width, channels)
	ChannelsLast
	// ChannelsFirst is (frames, channels, height, width)
	ChannelsFirst
)

func (l Layout) String() string {
	switch l {
	case Planar:
		return "planar"
	case ChannelsLast:
		return "channels-last"
	case ChannelsFirst:
		return "channels-first"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

// Shape describes the dimensions of a stack independent of axis order
type Shape struct {
	Frames   int
	Height   int
	Width    int
	Channels int
	Layout   Layout
}

// ParseShape interprets container dimensions. Accepted forms are
// (F,H,W), (F,H,W,3) and (F,3,H,W). When both candidate channel axes hold 3,
// the channels-last reading wins.
func ParseShape(dims []int) (Shape, error) {
	for _, d := range dims {
		if d <= 0 {
			return Shape{}, fmt.Errorf("%w: %v has an empty dimension", ErrInvalidShape, dims)
		}
	}

	switch len(dims) {
	case 3:
		return Shape{Frames: dims[0], Height: dims[1], Width: dims[2], Channels: 1, Layout: Planar}, nil
	case 4:
		switch {
		case dims[3] == RGBChannels:
			return Shape{Frames: dims[0], Height: dims[1], Width: dims[2], Channels: RGBChannels, Layout: ChannelsLast}, nil
		case dims[1] == RGBChannels:
			return Shape{Frames: dims[0], Height: dims[2], Width: dims[3], Channels: RGBChannels, Layout: ChannelsFirst}, nil
		default:
			return Shape{}, fmt.Errorf("%w: %v (need 1 or %d channels)", ErrUnsupportedChannelCount, dims, RGBChannels)
		}
	default:
		return Shape{}, fmt.Errorf("%w: %v has rank %d, want 3 or 4", ErrInvalidShape, dims, len(dims))
	}
}

// Dims returns the dimensions in container order for the shape's layout
func (s Shape) Dims() []int {
	switch s.Layout {
	case ChannelsLast:
		return []int{s.Frames, s.Height, s.Width, s.Channels}
	case ChannelsFirst:
		return []int{s.Frames, s.Channels, s.Height, s.Width}
	default:
		return []int{s.Frames, s.Height, s.Width}
	}
}

// PlaneSize is the number of samples in one channel of one frame
func (s Shape) PlaneSize() int {
	return s.Height * s.Width
}

// Len is the total number of samples in the stack
func (s Shape) Len() int {
	return s.Frames * s.Channels * s.PlaneSize()
}

// Frame is one time point; Planes holds one row-major plane per channel.
type Frame struct {
	Planes [][]float64
}

// Stack is an ordered sequence of frames with identical dimensions.
// Samples keep their original values; DType says how they were stored.
type Stack struct {
	Shape  Shape
	DType  DType
	frames []Frame
}

// FromFrames builds a stack from already separated frames, checking that
// each frame matches the shape.
func FromFrames(shape Shape, dtype DType, frames []Frame) (*Stack, error) {
	if shape.Frames != len(frames) {
		return nil, fmt.Errorf("%w: shape says %d frames, got %d", ErrInvalidShape, shape.Frames, len(frames))
	}
	if shape.Height <= 0 || shape.Width <= 0 || shape.Frames <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, shape.Dims())
	}
	if shape.Channels != 1 && shape.Channels != RGBChannels {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannelCount, shape.Channels)
	}
	for i, f := range frames {
		if len(f.Planes) != shape.Channels {
			return nil, fmt.Errorf("%w: frame %d has %d channels, want %d", ErrInvalidShape, i, len(f.Planes), shape.Channels)
		}
		for c, p := range f.Planes {
			if len(p) != shape.PlaneSize() {
				return nil, fmt.Errorf("%w: frame %d channel %d has %d samples, want %d",
					ErrInvalidShape, i, c, len(p), shape.PlaneSize())
			}
		}
	}
	return &Stack{Shape: shape, DType: dtype, frames: frames}, nil
}

// FromInterleaved builds a stack from a flat C-order array with the given
// container dimensions.
func FromInterleaved(dims []int, dtype DType, data []float64) (*Stack, error) {
	shape, err := ParseShape(dims)
	if err != nil {
		return nil, err
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("%w: %v needs %d samples, got %d", ErrInvalidShape, dims, shape.Len(), len(data))
	}

	n := shape.PlaneSize()
	frames := make([]Frame, shape.Frames)
	for f := range frames {
		planes := make([][]float64, shape.Channels)
		switch shape.Layout {
		case Planar:
			planes[0] = data[f*n : (f+1)*n]
		case ChannelsFirst:
			for c := range planes {
				off := (f*shape.Channels + c) * n
				planes[c] = data[off : off+n]
			}
		case ChannelsLast:
			base := f * n * shape.Channels
			for c := range planes {
				plane := make([]float64, n)
				for p := 0; p < n; p++ {
					plane[p] = data[base+p*shape.Channels+c]
				}
				planes[c] = plane
			}
		}
		frames[f].Planes = planes
	}

	return &Stack{Shape: shape, DType: dtype, frames: frames}, nil
}

// Interleaved flattens the stack back into C order for its layout
func (s *Stack) Interleaved() []float64 {
	out := make([]float64, 0, s.Shape.Len())
	n := s.Shape.PlaneSize()
	for _, f := range s.frames {
		if s.Shape.Layout != ChannelsLast {
			for _, p := range f.Planes {
				out = append(out, p...)
			}
			continue
		}
		for p := 0; p < n; p++ {
			for c := range f.Planes {
				out = append(out, f.Planes[c][p])
			}
		}
	}
	return out
}

// Len returns the number of frames
func (s *Stack) Len() int {
	return len(s.frames)
}

// Frame returns frame i. The caller must not modify the planes.
func (s *Stack) Frame(i int) Frame {
	return s.frames[i]
}

// Plane returns the samples of one channel of one frame
func (s *Stack) Plane(frame, channel int) []float64 {
	return s.frames[frame].Planes[channel]
}

// ChannelPlanes returns the planes of channel c across every frame
func (s *Stack) ChannelPlanes(c int) [][]float64 {
	planes := make([][]float64, len(s.frames))
	for i, f := range s.frames {
		planes[i] = f.Planes[c]
	}
	return planes
}

// Sub returns the inclusive frame range [start, end] as a new stack that
// shares sample storage with s.
func (s *Stack) Sub(start, end int) (*Stack, error) {
	if start < 0 || end >= len(s.frames) || start > end {
		return nil, fmt.Errorf("frame range [%d, %d] outside [0, %d)", start, end, len(s.frames))
	}
	shape := s.Shape
	shape.Frames = end - start + 1
	frames := make([]Frame, shape.Frames)
	copy(frames, s.frames[start:end+1])
	return &Stack{Shape: shape, DType: s.DType, frames: frames}, nil
}
