package link

import (
	"sync"
	"time"
)

// DutyCycle enforces a regulatory transmit-time budget over a trailing
// window. The model is deliberately approximate: the accumulator is
// zeroed whenever a read or write finds the window expired, rather than
// keeping a sliding log of timestamped transmissions. Under a long idle
// period followed by a burst this under-counts; a timestamped sliding
// window would be the stricter replacement if the memory is acceptable.
type DutyCycle struct {
	mu sync.Mutex

	limitPercent  float64
	window        time.Duration
	accumulatedMs uint32
	windowStart   time.Time

	now func() time.Time
}

// NewDutyCycle creates a tracker with the given usage limit (percent of
// the window, e.g. 1.0) and window length.
func NewDutyCycle(limitPercent float64, window time.Duration) *DutyCycle {
	return &DutyCycle{
		limitPercent: limitPercent,
		window:       window,
		now:          time.Now,
	}
}

// Record adds a transmission's airtime to the accumulator, resetting
// the window first if it has expired.
func (d *DutyCycle) Record(airtime time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollLocked()
	d.accumulatedMs += uint32(airtime.Milliseconds())
	if d.windowStart.IsZero() {
		d.windowStart = d.now()
	}
}

// UsagePercent returns the share of the window consumed by recorded
// airtime. An expired window reads as zero usage and resets the
// accumulator as a side effect.
func (d *DutyCycle) UsagePercent() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollLocked()
	return float64(d.accumulatedMs) / float64(d.window.Milliseconds()) * 100
}

// CanTransmit reports whether usage is still below the limit.
func (d *DutyCycle) CanTransmit() bool {
	return d.UsagePercent() < d.limitPercent
}

// Reset clears the accumulator and restarts the window.
func (d *DutyCycle) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accumulatedMs = 0
	d.windowStart = d.now()
}

// rollLocked zeroes the accumulator when the window has expired.
func (d *DutyCycle) rollLocked() {
	if d.windowStart.IsZero() {
		return
	}
	if d.now().Sub(d.windowStart) > d.window {
		d.accumulatedMs = 0
		d.windowStart = d.now()
	}
}
