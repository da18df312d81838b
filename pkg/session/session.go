// Package session holds the single source of truth for the viewer: which
// stack is loaded, which frame and channel are shown, and which frame
// interval is marked for export.
//
// A Session is not safe for concurrent use. It is driven from one event loop
// and reports every change to its observers synchronously.
package session

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"cellviewer/internal/models"
	"cellviewer/pkg/codec"
	"cellviewer/pkg/interval"
	"cellviewer/pkg/normalize"
	"cellviewer/pkg/stack"
)

// DefaultExportSuffix is appended to the stack name for default export paths
const DefaultExportSuffix = "_trimmed"

// Observer receives change notifications from a Session
type Observer interface {
	FrameChanged(models.FrameUpdate)
	StatusChanged(models.StatusUpdate)
	StackChanged(models.StackUpdate)
	IntervalChanged(models.IntervalUpdate)
}

// Options configure a Session. Zero fields fall back to defaults.
type Options struct {
	Codec codec.Codec
	Store *interval.Store

	// Policy selects normalization; PolicyAuto decides per stack
	Policy         normalize.Policy
	LowPercentile  float64
	HighPercentile float64

	ExportSuffix string
	Logger       *slog.Logger
}

// Session owns one loaded stack and the viewer position within it
type Session struct {
	codec  codec.Codec
	store  *interval.Store
	policy normalize.Policy
	low    float64
	high   float64
	suffix string
	log    *slog.Logger

	observers []Observer

	// Loaded state, valid while st != nil
	st         *stack.Stack
	path       string
	format     codec.Format
	resolved   normalize.Policy
	normalized *normalize.Normalized
	frame      int
	channel    int
	iv         interval.Interval
	sidecarErr error
	display    *image.Gray
}

// New creates a Session with no stack loaded
func New(opts Options) *Session {
	s := &Session{
		codec:  opts.Codec,
		store:  opts.Store,
		policy: opts.Policy,
		low:    opts.LowPercentile,
		high:   opts.HighPercentile,
		suffix: opts.ExportSuffix,
		log:    opts.Logger,
	}
	if s.codec == nil {
		s.codec = codec.Files{}
	}
	if s.store == nil {
		s.store = interval.NewStore("")
	}
	if s.policy == "" {
		s.policy = normalize.PolicyAuto
	}
	if s.low == 0 && s.high == 0 {
		s.low, s.high = normalize.DefaultLowPercentile, normalize.DefaultHighPercentile
	}
	if s.suffix == "" {
		s.suffix = DefaultExportSuffix
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Subscribe registers o for all future notifications
func (s *Session) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// Load replaces the current stack with the one at path. Any failure leaves
// the session without a stack and is returned as a *LoadError.
func (s *Session) Load(path string) (models.StackSummary, error) {
	hadStack := s.st != nil
	s.reset()

	st, format, err := s.codec.Read(path)
	if err != nil {
		lerr := &LoadError{Path: path, Err: classifyLoad(err)}
		s.log.Error("load failed", "path", path, "error", err)
		if hadStack {
			s.emitStack()
			s.emitInterval()
		}
		s.status(lerr.Error(), lerr)
		return models.StackSummary{}, lerr
	}

	s.st = st
	s.path = path
	s.format = format
	s.resolved = s.policy.Resolve(st.Shape.Channels)
	if s.resolved == normalize.PolicyPercentile {
		s.normalized = normalize.Percentile(st, s.low, s.high)
	}

	s.sidecarErr = s.loadInterval()
	s.refresh()

	sum := s.Summary()
	s.log.Info("stack loaded", "path", path, "frames", sum.Frames, "channels", sum.Channels,
		"dtype", sum.DType, "policy", string(s.resolved))

	s.emitStack()
	s.emitInterval()
	s.emitFrame()

	msg := fmt.Sprintf("Loaded %s: %s", filepath.Base(path), sum)
	if s.iv.Complete() {
		msg += fmt.Sprintf(", interval %s", s.iv)
	}
	s.status(msg, nil)
	if s.sidecarErr != nil {
		s.status(s.sidecarErr.Error(), s.sidecarErr)
	}
	return sum, nil
}

// loadInterval restores the persisted interval for the loaded stack. A
// problem with the sidecar is returned for reporting but never fails a load.
func (s *Session) loadInterval() error {
	iv, err := s.store.Load(s.path)
	switch {
	case errors.Is(err, interval.ErrNotFound):
		return nil
	case err != nil:
		s.log.Warn("ignoring interval sidecar", "path", s.store.PathFor(s.path), "error", err)
		return &IntervalError{Op: "load interval", Err: err}
	case iv.End >= s.st.Len():
		s.log.Warn("stored interval exceeds stack", "interval", iv.String(), "frames", s.st.Len())
		return &IntervalError{
			Op:  "load interval",
			Err: fmt.Errorf("%w: stored interval %s exceeds %d frames", ErrOutOfRange, iv, s.st.Len()),
		}
	}
	s.iv = iv
	return nil
}

// Unload discards the current stack
func (s *Session) Unload() {
	if s.st == nil {
		return
	}
	path := s.path
	s.reset()
	s.emitStack()
	s.emitInterval()
	s.status("Closed "+filepath.Base(path), nil)
}

func (s *Session) reset() {
	s.st = nil
	s.path = ""
	s.format = ""
	s.resolved = ""
	s.normalized = nil
	s.frame = 0
	s.channel = 0
	s.iv = interval.Interval{}
	s.sidecarErr = nil
	s.display = nil
}

// HasStack reports whether a stack is loaded
func (s *Session) HasStack() bool {
	return s.st != nil
}

// Frame returns the current frame index
func (s *Session) Frame() int {
	return s.frame
}

// Channel returns the selected channel
func (s *Session) Channel() int {
	return s.channel
}

// Frames returns the number of frames, 0 without a stack
func (s *Session) Frames() int {
	if s.st == nil {
		return 0
	}
	return s.st.Len()
}

// Channels returns the channel count, 0 without a stack
func (s *Session) Channels() int {
	if s.st == nil {
		return 0
	}
	return s.st.Shape.Channels
}

// Interval returns the marked interval
func (s *Session) Interval() interval.Interval {
	return s.iv
}

// SidecarError returns the problem that kept the stored interval from being
// restored at load, or nil when there was none or no sidecar exists.
func (s *Session) SidecarError() error {
	return s.sidecarErr
}

// Path returns the file the current stack was loaded from
func (s *Session) Path() string {
	return s.path
}

// Policy returns the normalization policy in effect for the loaded stack
func (s *Session) Policy() normalize.Policy {
	if s.st == nil {
		return s.policy
	}
	return s.resolved
}

// Summary describes the loaded stack
func (s *Session) Summary() models.StackSummary {
	if s.st == nil {
		return models.StackSummary{}
	}
	sh := s.st.Shape
	return models.StackSummary{
		Path:     s.path,
		Format:   string(s.format),
		Frames:   sh.Frames,
		Height:   sh.Height,
		Width:    sh.Width,
		Channels: sh.Channels,
		DType:    string(s.st.DType),
		Layout:   sh.Layout.String(),
	}
}

// ChannelStats summarizes the raw samples of channel c across all frames
func (s *Session) ChannelStats(c int) (normalize.Stats, error) {
	if s.st == nil {
		return normalize.Stats{}, ErrNoStackLoaded
	}
	if c < 0 || c >= s.st.Shape.Channels {
		return normalize.Stats{}, fmt.Errorf("%w: channel %d not in [0, %d)", ErrOutOfRange, c, s.st.Shape.Channels)
	}
	return normalize.ComputeStats(s.st.ChannelPlanes(c)), nil
}

// SetFrame shows frame i. An index outside [0, frames) is rejected and the
// current frame is kept.
func (s *Session) SetFrame(i int) error {
	if s.st == nil {
		return s.fail(ErrNoStackLoaded)
	}
	if i < 0 || i >= s.st.Len() {
		return s.fail(fmt.Errorf("%w: frame %d not in [0, %d)", ErrOutOfRange, i, s.st.Len()))
	}
	s.frame = i
	s.refresh()
	s.emitFrame()
	return nil
}

// AdvanceFrame moves to the next frame, wrapping at the end. It does
// nothing without a stack.
func (s *Session) AdvanceFrame() {
	s.StepFrame(1)
}

// StepFrame moves delta frames, wrapping in both directions
func (s *Session) StepFrame(delta int) {
	if s.st == nil {
		return
	}
	n := s.st.Len()
	s.frame = ((s.frame+delta)%n + n) % n
	s.refresh()
	s.emitFrame()
}

// SetChannel selects the displayed channel. Single-channel stacks ignore it.
func (s *Session) SetChannel(i int) error {
	if s.st == nil {
		return s.fail(ErrNoStackLoaded)
	}
	c := s.st.Shape.Channels
	if c == 1 {
		return nil
	}
	if i < 0 || i >= c {
		return s.fail(fmt.Errorf("%w: channel %d not in [0, %d)", ErrOutOfRange, i, c))
	}
	s.channel = i
	s.refresh()
	s.emitFrame()
	return nil
}

// MarkStart sets the interval start to frame
func (s *Session) MarkStart(frame int) error {
	return s.mark("mark start", frame, func(iv *interval.Interval) {
		iv.Start, iv.HasStart = frame, true
	})
}

// MarkEnd sets the interval end to frame
func (s *Session) MarkEnd(frame int) error {
	return s.mark("mark end", frame, func(iv *interval.Interval) {
		iv.End, iv.HasEnd = frame, true
	})
}

// MarkStartHere marks the current frame as interval start
func (s *Session) MarkStartHere() error {
	return s.MarkStart(s.frame)
}

// MarkEndHere marks the current frame as interval end
func (s *Session) MarkEndHere() error {
	return s.MarkEnd(s.frame)
}

// mark applies set after bounds-checking frame. Once both bounds are set the
// pair is ordered and persisted; a persist failure keeps the marked interval
// in memory.
func (s *Session) mark(op string, frame int, set func(*interval.Interval)) error {
	if s.st == nil {
		return s.fail(&IntervalError{Op: op, Err: ErrNoStackLoaded})
	}
	if frame < 0 || frame >= s.st.Len() {
		return s.fail(&IntervalError{
			Op:  op,
			Err: fmt.Errorf("%w: frame %d not in [0, %d)", ErrOutOfRange, frame, s.st.Len()),
		})
	}

	set(&s.iv)
	s.iv = s.iv.Ordered()
	s.emitInterval()

	if !s.iv.Complete() {
		s.status(fmt.Sprintf("Interval %s", s.iv), nil)
		return nil
	}

	if err := s.store.Save(s.path, s.iv); err != nil {
		s.log.Warn("interval not saved", "path", s.store.PathFor(s.path), "error", err)
		return s.fail(&IntervalError{Op: "save interval", Err: err})
	}
	s.log.Info("interval saved", "path", s.store.PathFor(s.path), "interval", s.iv.String())
	s.status(fmt.Sprintf("Interval set: %s (%d frames)", s.iv, s.iv.Len()), nil)
	return nil
}

// ClearInterval unsets both bounds. The sidecar is left as it is.
func (s *Session) ClearInterval() {
	if s.iv == (interval.Interval{}) {
		return
	}
	s.iv = interval.Interval{}
	s.emitInterval()
	s.status("Interval cleared", nil)
}

// ExportInterval writes the original samples of the marked interval to dest
// in the source stack's format.
func (s *Session) ExportInterval(dest string) error {
	if s.st == nil {
		return s.fail(&ExportError{Path: dest, Err: ErrNoStackLoaded})
	}
	if !s.iv.Complete() {
		return s.fail(&ExportError{Path: dest, Err: ErrNoIntervalMarked})
	}
	if f, err := codec.FormatOf(dest); err != nil || f != s.format {
		return s.fail(&ExportError{
			Path: dest,
			Err:  fmt.Errorf("%w: source is %s", ErrFormatMismatch, s.format),
		})
	}

	if filepath.Clean(dest) == filepath.Clean(s.path) {
		return s.fail(&ExportError{
			Path: dest,
			Err:  fmt.Errorf("%w: refusing to overwrite the source stack", ErrIOFailure),
		})
	}

	sub, err := s.st.Sub(s.iv.Start, s.iv.End)
	if err != nil {
		return s.fail(&ExportError{Path: dest, Err: fmt.Errorf("%w: %v", ErrOutOfRange, err)})
	}
	if err := s.codec.Write(dest, sub, s.format); err != nil {
		s.log.Error("export failed", "path", dest, "error", err)
		return s.fail(&ExportError{Path: dest, Err: fmt.Errorf("%w: %v", ErrIOFailure, err)})
	}

	s.log.Info("interval exported", "path", dest, "interval", s.iv.String(), "frames", sub.Len())
	s.status(fmt.Sprintf("Exported frames %s (%d) to %s", s.iv, sub.Len(), dest), nil)
	return nil
}

// ExportPath returns the default export destination in dir, or next to the
// stack when dir is empty: <name><suffix><ext>.
func (s *Session) ExportPath(dir string) string {
	if s.st == nil {
		return ""
	}
	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	if dir == "" {
		dir = filepath.Dir(s.path)
	}
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+s.suffix+ext)
}

// CurrentDisplayFrame returns the 8-bit image of the selected channel of the
// current frame, or nil without a stack. The image must not be modified.
func (s *Session) CurrentDisplayFrame() *image.Gray {
	return s.display
}

// CompositeFrame returns the current frame with all three channels
// composed as RGB, or nil unless an RGB stack is loaded.
func (s *Session) CompositeFrame() *image.RGBA {
	if s.st == nil || s.st.Shape.Channels != stack.RGBChannels {
		return nil
	}
	sh := s.st.Shape
	return normalize.Composite(s.displayPlane(0), s.displayPlane(1), s.displayPlane(2), sh.Width, sh.Height)
}

// refresh recomputes the cached display frame
func (s *Session) refresh() {
	s.display = normalize.Gray(s.displayPlane(s.channel), s.st.Shape.Width, s.st.Shape.Height)
}

func (s *Session) displayPlane(c int) []uint8 {
	if s.normalized != nil {
		return s.normalized.Plane(s.frame, c)
	}
	return normalize.MinMax(s.st.Plane(s.frame, c))
}

// fail reports err as a status message and returns it
func (s *Session) fail(err error) error {
	s.status(err.Error(), err)
	return err
}

func (s *Session) status(msg string, err error) {
	u := models.StatusUpdate{Message: msg, Err: err}
	for _, o := range s.observers {
		o.StatusChanged(u)
	}
}

func (s *Session) emitFrame() {
	u := models.FrameUpdate{
		Display: s.display,
		Frame:   s.frame,
		Frames:  s.st.Len(),
		Channel: s.channel,
	}
	for _, o := range s.observers {
		o.FrameChanged(u)
	}
}

func (s *Session) emitStack() {
	u := models.StackUpdate{HasStack: s.st != nil, MinFrame: -1, MaxFrame: -1}
	if s.st != nil {
		u.MinFrame, u.MaxFrame = 0, s.st.Len()-1
		u.Summary = s.Summary()
	}
	for _, o := range s.observers {
		o.StackChanged(u)
	}
}

func (s *Session) emitInterval() {
	u := models.IntervalUpdate{Start: -1, End: -1}
	if s.iv.HasStart {
		u.Start = s.iv.Start
	}
	if s.iv.HasEnd {
		u.End = s.iv.End
	}
	for _, o := range s.observers {
		o.IntervalChanged(u)
	}
}
