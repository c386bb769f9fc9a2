package motor

import "github.com/comalice/racekart/internal/config"

const maxDuty = 100

// PID is one wheel's speed regulator:
//
//	duty = Kp*(e + Ki*sum(e) + Kd*de)
//
// clamped to [0, 100]. A tick whose output clamps does not keep its error
// in the accumulator.
type PID struct {
	Gains config.Gains

	sum  float64
	prev float64
}

// Update runs one control step and returns the duty to apply.
func (p *PID) Update(target, measured float64) float64 {
	e := target - measured
	p.sum += e
	de := e - p.prev
	p.prev = e

	duty := p.Gains.Kp * (e + p.Gains.Ki*p.sum + p.Gains.Kd*de)
	switch {
	case duty > maxDuty:
		duty = maxDuty
		p.sum -= e
	case duty < 0:
		duty = 0
		p.sum -= e
	}
	return duty
}

// Reset clears the accumulated and previous error.
func (p *PID) Reset() {
	p.sum = 0
	p.prev = 0
}

func (p *PID) Integral() float64 {
	return p.sum
}
