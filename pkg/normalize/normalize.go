// Package normalize maps raw stack samples to 8-bit display values.
//
// Two policies are supported. Min-max scales each displayed plane by its own
// range and runs lazily, one frame at a time. Percentile clips every channel
// to the 0.1st/99.9th percentile of its positive samples across the whole
// stack and runs once, when the stack is loaded.
package normalize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cellviewer/pkg/stack"
)

// Policy selects how samples become display values
type Policy string

const (
	// PolicyMinMax scales each frame/channel by its own min and max
	PolicyMinMax Policy = "minmax"
	// PolicyPercentile clips each channel to stack-wide percentiles
	PolicyPercentile Policy = "percentile"
	// PolicyAuto picks percentile for multi-channel stacks, min-max otherwise
	PolicyAuto Policy = "auto"
)

const (
	DefaultLowPercentile  = 0.1
	DefaultHighPercentile = 99.9

	// FlatGray is the value a channel with no usable range is drawn with
	FlatGray = 128
)

// ParsePolicy converts a config or flag value into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyMinMax, PolicyPercentile, PolicyAuto:
		return p, nil
	case "":
		return PolicyAuto, nil
	}
	return "", fmt.Errorf("unknown normalization policy %q (want minmax, percentile or auto)", s)
}

// Resolve turns PolicyAuto into a concrete policy for a stack with the
// given channel count.
func (p Policy) Resolve(channels int) Policy {
	if p != PolicyAuto {
		return p
	}
	if channels > 1 {
		return PolicyPercentile
	}
	return PolicyMinMax
}

// toByte rounds a value already scaled to [0,255], clipping out-of-range input
func toByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// MinMax scales plane so its minimum maps to 0 and its maximum to 255.
// A plane with no range maps to all zeros.
func MinMax(plane []float64) []uint8 {
	out := make([]uint8, len(plane))
	if len(plane) == 0 {
		return out
	}

	lo, hi := floats.Min(plane), floats.Max(plane)
	if hi == lo {
		return out
	}

	scale := 255 / (hi - lo)
	for i, v := range plane {
		out[i] = toByte((v - lo) * scale)
	}
	return out
}

// Bounds are the clip limits computed for one channel
type Bounds struct {
	Low, High float64

	// Positive is false when the channel held no positive samples
	Positive bool
}

// PercentileBounds computes the low/high percentiles (0-100) over the
// positive samples of planes. Samples <= 0 are excluded.
func PercentileBounds(planes [][]float64, low, high float64) Bounds {
	var positive []float64
	for _, p := range planes {
		for _, v := range p {
			if v > 0 {
				positive = append(positive, v)
			}
		}
	}
	if len(positive) == 0 {
		return Bounds{}
	}

	sort.Float64s(positive)
	return Bounds{
		Low:      linearPercentile(positive, low),
		High:     linearPercentile(positive, high),
		Positive: true,
	}
}

// linearPercentile interpolates between the two order statistics around
// rank p/100*(n-1), the same estimate numpy.percentile gives by default.
// sorted must be ascending and non-empty.
func linearPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := math.Min(math.Max(p/100, 0), 1) * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Apply maps plane through b: zeros without positive samples, flat gray
// for an empty range, linear scaling otherwise.
func (b Bounds) Apply(plane []float64) []uint8 {
	out := make([]uint8, len(plane))
	switch {
	case !b.Positive:
	case b.High == b.Low:
		for i := range out {
			out[i] = FlatGray
		}
	default:
		scale := 255 / (b.High - b.Low)
		for i, v := range plane {
			out[i] = toByte((v - b.Low) * scale)
		}
	}
	return out
}

// Normalized is a whole stack already mapped to display values
type Normalized struct {
	// planes is indexed [frame][channel]
	planes [][][]uint8
	bounds []Bounds
}

// Percentile normalizes every channel of s using bounds computed across
// all of its frames.
func Percentile(s *stack.Stack, low, high float64) *Normalized {
	n := &Normalized{
		planes: make([][][]uint8, s.Len()),
		bounds: make([]Bounds, s.Shape.Channels),
	}
	for f := range n.planes {
		n.planes[f] = make([][]uint8, s.Shape.Channels)
	}

	for c := 0; c < s.Shape.Channels; c++ {
		b := PercentileBounds(s.ChannelPlanes(c), low, high)
		n.bounds[c] = b
		for f := 0; f < s.Len(); f++ {
			n.planes[f][c] = b.Apply(s.Plane(f, c))
		}
	}
	return n
}

// Plane returns the display values of one channel of one frame
func (n *Normalized) Plane(frame, channel int) []uint8 {
	return n.planes[frame][channel]
}

// Bounds returns the clip limits used for channel c
func (n *Normalized) Bounds(c int) Bounds {
	return n.bounds[c]
}

// Stats summarizes raw samples
type Stats struct {
	Min, Max     float64
	Mean, StdDev float64
	Count        int
}

// ComputeStats summarizes the samples of planes
func ComputeStats(planes [][]float64) Stats {
	var all []float64
	for _, p := range planes {
		all = append(all, p...)
	}
	if len(all) == 0 {
		return Stats{}
	}

	mean, std := stat.MeanStdDev(all, nil)
	return Stats{
		Min:    floats.Min(all),
		Max:    floats.Max(all),
		Mean:   mean,
		StdDev: std,
		Count:  len(all),
	}
}
