// Package motor is the closed-loop drive: encoder capture, per-wheel PID
// with anti-windup, open-loop duty, tick-count travel targets and the
// composite motion commands the state machines issue.
package motor

import (
	movingaverage "github.com/RobinUS2/golang-moving-average"

	"github.com/comalice/racekart/internal/config"
)

type Wheel uint8

const (
	Left Wheel = iota
	Right
)

func (w Wheel) String() string {
	if w == Left {
		return "left"
	}
	return "right"
}

// Encoder converts capture timestamps of one wheel's encoder edges into RPM.
// Timestamps come from a free-running clock of ClockHz ticks per second and
// may wrap around.
type Encoder struct {
	clockHz      uint32
	pulsesPerRev uint32
	stallTicks   uint32
	window       int

	lastEdge uint32
	period   uint32
	haveEdge bool
	count    uint32
	avg      *movingaverage.MovingAverage
}

func NewEncoder(cfg config.Encoder) *Encoder {
	window := cfg.SmoothingWindow
	if window < 1 {
		window = 1
	}
	return &Encoder{
		clockHz:      cfg.ClockHz,
		pulsesPerRev: cfg.PulsesPerRev,
		stallTicks:   uint32(uint64(cfg.ClockHz) * uint64(cfg.StallMS) / 1000),
		window:       window,
		avg:          movingaverage.New(window),
	}
}

// Capture records an edge at stamp and counts it toward the travel target.
func (e *Encoder) Capture(stamp uint32) {
	e.count++
	if !e.haveEdge {
		e.haveEdge = true
		e.lastEdge = stamp
		return
	}
	gap := stamp - e.lastEdge
	e.lastEdge = stamp
	if gap == 0 {
		return
	}
	if gap > e.stallTicks {
		// First edge after a stall: the gap is not a rotation period.
		e.avg = movingaverage.New(e.window)
		e.period = 0
		return
	}
	e.period = gap
	e.avg.Add(e.rpmOf(gap))
}

// RPM returns the smoothed speed at capture time now, or 0 when no edge has
// arrived within the stall threshold.
func (e *Encoder) RPM(now uint32) float64 {
	if !e.haveEdge || e.period == 0 {
		return 0
	}
	if now-e.lastEdge > e.stallTicks {
		return 0
	}
	return e.avg.Avg()
}

// Period is the last measured edge-to-edge interval in clock ticks. It is
// kept through a stall until rotation resumes.
func (e *Encoder) Period() uint32 {
	return e.period
}

// Count is the number of edges since the last ResetCount.
func (e *Encoder) Count() uint32 {
	return e.count
}

func (e *Encoder) ResetCount() {
	e.count = 0
}

func (e *Encoder) rpmOf(period uint32) float64 {
	return float64(e.clockHz) * 60 / (float64(period) * float64(e.pulsesPerRev))
}
