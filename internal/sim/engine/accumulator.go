package engine

import "math"

// DefaultMaxCatchUp bounds how many times a fixed-interval phase may run in
// a single Update. Anything beyond it is dropped, so simulated time slows
// down under extreme frame spikes instead of doing unbounded work.
const DefaultMaxCatchUp = 5

// Accumulator converts variable frame time into whole fixed intervals.
type Accumulator struct {
	Interval   float64
	MaxCatchUp int

	acc     float64
	dropped uint64
}

func NewAccumulator(interval float64, maxCatchUp int) Accumulator {
	if maxCatchUp <= 0 {
		maxCatchUp = DefaultMaxCatchUp
	}
	return Accumulator{Interval: interval, MaxCatchUp: maxCatchUp}
}

// Advance adds dt and returns how many intervals elapsed, capped at
// MaxCatchUp. Surplus whole intervals are discarded; the fractional
// remainder carries over.
func (a *Accumulator) Advance(dt float64) int {
	if a.Interval <= 0 || !(dt > 0) || math.IsInf(dt, 0) {
		return 0
	}
	a.acc += dt
	n := 0
	for a.acc >= a.Interval && n < a.MaxCatchUp {
		a.acc -= a.Interval
		n++
	}
	if a.acc >= a.Interval {
		a.drop(math.Floor(a.acc / a.Interval))
		a.acc = math.Mod(a.acc, a.Interval)
	}
	return n
}

// drop adds surplus to the dropped count, saturating at MaxUint64.
func (a *Accumulator) drop(surplus float64) {
	if surplus >= math.MaxUint64 || math.MaxUint64-float64(a.dropped) <= surplus {
		a.dropped = math.MaxUint64
		return
	}
	a.dropped += uint64(surplus)
}

// Pending is the time accumulated toward the next interval.
func (a *Accumulator) Pending() float64 { return a.acc }

// Dropped counts intervals discarded by the catch-up cap.
func (a *Accumulator) Dropped() uint64 { return a.dropped }

// Restore sets the pending time, e.g. when resuming from a snapshot.
func (a *Accumulator) Restore(pending float64) {
	if pending < 0 || math.IsNaN(pending) || math.IsInf(pending, 0) {
		pending = 0
	}
	a.acc = pending
}
