// Package playback advances a stack at a fixed cadence.
//
// The Clock does not own a timer. Each Start hands out a Tick that the event
// loop delivers back through Handle after Interval has elapsed; Handle
// advances the target and says whether to schedule the tick again. Ticks
// issued before the most recent Start, Stop or SetInterval are stale and
// ignored, so at most one tick chain is ever live.
package playback

import (
	"fmt"
	"time"
)

const (
	// DefaultInterval is the cadence used when none is configured
	DefaultInterval = 100 * time.Millisecond

	// MinInterval is the fastest cadence a clock accepts
	MinInterval = 10 * time.Millisecond
)

// Advancer is what a clock drives
type Advancer interface {
	HasStack() bool
	AdvanceFrame()
}

// State of a clock
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Tick is one scheduled advance
type Tick struct {
	seq uint64
}

// Clock is a Stopped/Running state machine over an Advancer
type Clock struct {
	target   Advancer
	interval time.Duration
	state    State
	seq      uint64
}

// New creates a stopped clock. A non-positive interval means DefaultInterval.
func New(target Advancer, interval time.Duration) *Clock {
	c := &Clock{target: target}
	c.setInterval(interval)
	return c
}

func (c *Clock) setInterval(d time.Duration) {
	switch {
	case d <= 0:
		d = DefaultInterval
	case d < MinInterval:
		d = MinInterval
	}
	c.interval = d
}

// Interval returns the cadence
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// State returns the current state
func (c *Clock) State() State {
	return c.state
}

// Running reports whether the clock is running
func (c *Clock) Running() bool {
	return c.state == Running
}

// Start moves to Running and returns the first tick to schedule. Without a
// stack the clock stays stopped and ok is false.
func (c *Clock) Start() (t Tick, ok bool) {
	if !c.target.HasStack() {
		c.Stop()
		return Tick{}, false
	}
	c.state = Running
	return c.next(), true
}

// Stop moves to Stopped; outstanding ticks become stale
func (c *Clock) Stop() {
	c.state = Stopped
	c.seq++
}

// Toggle starts a stopped clock or stops a running one
func (c *Clock) Toggle() (Tick, bool) {
	if c.Running() {
		c.Stop()
		return Tick{}, false
	}
	return c.Start()
}

// SetInterval changes the cadence. A running clock keeps running and the
// returned tick replaces the outstanding one, so the new cadence applies to
// the very next advance.
func (c *Clock) SetInterval(d time.Duration) (Tick, bool) {
	c.setInterval(d)
	if !c.Running() {
		return Tick{}, false
	}
	return c.next(), true
}

// Handle processes a delivered tick. It advances the target and returns the
// tick to schedule next, or ok false when the tick is stale or the clock has
// stopped. A target without a stack stops the clock.
func (c *Clock) Handle(t Tick) (next Tick, ok bool) {
	if !c.Running() || t.seq != c.seq {
		return Tick{}, false
	}
	if !c.target.HasStack() {
		c.Stop()
		return Tick{}, false
	}
	c.target.AdvanceFrame()
	return t, true
}

func (c *Clock) next() Tick {
	c.seq++
	return Tick{seq: c.seq}
}
