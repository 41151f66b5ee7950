// Package clock holds the process-wide virtual-time state that the run
// loop advances as packets and timers are processed.
package clock

import (
	"math"
	"sync/atomic"
)

// UpdateHook is invoked whenever network time moves forward, mirroring
// the plugin hook HOOK_UPDATE_NETWORK_TIME.
type UpdateHook func(newTime float64)

// Clock is the process-wide virtual-time singleton. It is only ever
// mutated from the run loop's goroutine; the watchdog reads
// ProcessingStartTime via atomic load from its own goroutine.
type Clock struct {
	networkTime atomic.Uint64 // float64 bits, monotonic non-decreasing

	// processingStartTime is 0 when idle, set non-zero only between
	// entry and exit of a single dispatch. Stored as float64 bits so
	// the watchdog goroutine can read it with an atomic load without
	// taking a lock.
	processingStartTime atomic.Uint64

	StartWallTime       float64 // wall-clock time the run began
	StartNetworkTime    float64 // network time of the first packet, set exactly once
	startNetworkTimeSet bool
	CurrentTimestamp    float64 // wall-clock time as of the last idle-advance step

	CurrentDispatched int // timers+events charged to the current packet

	ReadingLive   bool
	ReadingTraces bool
	PseudoRealtime float64

	Terminating       bool
	IsParsing         bool
	HavePendingTimers bool

	suspended atomic.Int64

	OnUpdateNetworkTime UpdateHook
	OnSuspendChange      func(suspended bool)
}

// New builds a Clock with the given wall-clock start time.
func New(wallStart float64) *Clock {
	c := &Clock{StartWallTime: wallStart}
	return c
}

// NetworkTime returns the current virtual time.
func (c *Clock) NetworkTime() float64 {
	return math.Float64frombits(c.networkTime.Load())
}

// ProcessingStartTime returns the timestamp of the packet in flight, or
// 0 if idle. Safe to call concurrently from the watchdog goroutine.
func (c *Clock) ProcessingStartTime() float64 {
	return math.Float64frombits(c.processingStartTime.Load())
}

// SetProcessingStartTime sets or clears (with 0) the in-flight packet
// timestamp. Only the run loop goroutine calls this.
func (c *Clock) SetProcessingStartTime(t float64) {
	c.processingStartTime.Store(math.Float64bits(t))
}

// UpdateNetworkTime sets network_time := t and fires the update hook.
// Callers must ensure t >= NetworkTime(); the run loop is responsible
// for clamping with max(t, timer_mgr.Time()) before calling.
func (c *Clock) UpdateNetworkTime(t float64) {
	c.networkTime.Store(math.Float64bits(t))
	if !c.startNetworkTimeSet {
		c.StartNetworkTime = t
		c.startNetworkTimeSet = true
	}
	if c.OnUpdateNetworkTime != nil {
		c.OnUpdateNetworkTime(t)
	}
}

// SuspendProcessing increments the suspension counter. Transitions from
// 0 are reported via OnSuspendChange, mirroring ContinueProcessing's
// transition back to 0.
func (c *Clock) SuspendProcessing() {
	n := c.suspended.Add(1)
	if n == 1 && c.OnSuspendChange != nil {
		c.OnSuspendChange(true)
	}
}

// ContinueProcessing decrements the suspension counter. Transitions to
// 0 are reported via OnSuspendChange.
func (c *Clock) ContinueProcessing() {
	n := c.suspended.Add(-1)
	if n < 0 {
		// Not suspended: nothing transitions, so nothing is reported.
		c.suspended.Store(0)
		return
	}
	if n == 0 && c.OnSuspendChange != nil {
		c.OnSuspendChange(false)
	}
}

// IsProcessingSuspended reports whether the suspension counter is
// non-zero.
func (c *Clock) IsProcessingSuspended() bool {
	return c.suspended.Load() != 0
}
