// Package sim stands in for the kart hardware: a drive plant that turns
// PWM duty into wheel motion and encoder edges, a pose integrator feeding
// the DRS store, and logging launcher and LED ports.
package sim

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/drs"
	"github.com/comalice/racekart/internal/motor"
)

// Encoders receives simulated encoder edges.
type Encoders interface {
	Capture(w motor.Wheel, stamp uint32)
	Now() uint32
}

// Params shape the plant's response.
type Params struct {
	MaxRPM      float64 // wheel speed at full duty
	TauMS       float64 // first-order time constant
	TrackMM     float64 // wheel separation
	MMPerUnit   float64 // DRS field unit
	PoseEveryMS int     // DRS refresh period
}

func DefaultParams() Params {
	return Params{MaxRPM: 600, TauMS: 40, TrackMM: 200, MMPerUnit: 10, PoseEveryMS: 100}
}

type simWheel struct {
	duty  uint8
	dir   motor.Direction
	rpm   float64
	phase float64 // fraction of the next encoder edge
}

// Plant implements motor.Actuator. Step advances it by one millisecond.
type Plant struct {
	mu     sync.Mutex
	p      Params
	wheels [2]simWheel

	pulsesPerRev float64
	clockPerMS   float64
	wheelMM      float64

	x, y, heading float64 // mm, mm, degrees
	sincePose     int

	enc   Encoders
	store *drs.Store
	log   zerolog.Logger
}

func NewPlant(cfg config.Config, p Params, enc Encoders, store *drs.Store, log zerolog.Logger) *Plant {
	return &Plant{
		p:            p,
		pulsesPerRev: float64(cfg.Encoder.PulsesPerRev),
		clockPerMS:   float64(cfg.Encoder.ClockHz) / 1000,
		wheelMM:      math.Pi * cfg.Motor.WheelDiameterMM,
		enc:          enc,
		store:        store,
		log:          log,
	}
}

// SetEncoders attaches the edge consumer after construction.
func (pl *Plant) SetEncoders(enc Encoders) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.enc = enc
}

// Place puts the kart at a field position (DRS units) and heading.
func (pl *Plant) Place(x, y, heading float64) {
	pl.mu.Lock()
	pl.x, pl.y, pl.heading = x*pl.p.MMPerUnit, y*pl.p.MMPerUnit, heading
	pl.mu.Unlock()
	pl.publish()
}

func (pl *Plant) SetDuty(w motor.Wheel, duty uint8) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.wheels[w].duty = duty
}

func (pl *Plant) SetDirection(w motor.Wheel, dir motor.Direction) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.wheels[w].dir = dir
}

// RPM is the simulated true speed of w.
func (pl *Plant) RPM(w motor.Wheel) float64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.wheels[w].rpm
}

type edge struct {
	w      motor.Wheel
	offset float64 // fraction of the millisecond
}

// Step advances the plant by 1 ms. Its signature matches realtime.TickFunc.
func (pl *Plant) Step(uint64) {
	pl.mu.Lock()
	var edges []edge
	var speed [2]float64 // signed mm per ms
	alpha := 1.0
	if pl.p.TauMS > 0 {
		alpha = 1 - math.Exp(-1/pl.p.TauMS)
	}
	for i := range pl.wheels {
		wh := &pl.wheels[i]
		goal := float64(wh.duty) / 100 * pl.p.MaxRPM
		wh.rpm += (goal - wh.rpm) * alpha

		perMS := wh.rpm / 60_000 * pl.pulsesPerRev
		for next := 1 - wh.phase; next <= perMS; next++ {
			edges = append(edges, edge{w: motor.Wheel(i), offset: next / perMS})
		}
		wh.phase = math.Mod(wh.phase+perMS, 1)

		v := wh.rpm / 60_000 * pl.wheelMM
		if wh.dir == motor.Backward {
			v = -v
		}
		speed[i] = v
	}
	pl.integrate(speed[motor.Left], speed[motor.Right])
	pl.sincePose++
	publish := pl.p.PoseEveryMS > 0 && pl.sincePose >= pl.p.PoseEveryMS
	if publish {
		pl.sincePose = 0
	}
	enc := pl.enc
	pl.mu.Unlock()

	if enc != nil {
		base := enc.Now()
		for _, e := range edges {
			enc.Capture(e.w, base+uint32(e.offset*pl.clockPerMS))
		}
	}
	if publish {
		pl.publish()
	}
}

// integrate moves the pose by one millisecond of differential drive.
func (pl *Plant) integrate(left, right float64) {
	v := (left + right) / 2
	omega := (right - left) / pl.p.TrackMM // rad per ms
	rad := pl.heading * math.Pi / 180
	pl.x += v * math.Cos(rad)
	pl.y += v * math.Sin(rad)
	pl.heading = math.Mod(pl.heading+omega*180/math.Pi+360, 360)
}

func (pl *Plant) publish() {
	if pl.store == nil {
		return
	}
	pl.mu.Lock()
	x, y, h := pl.x/pl.p.MMPerUnit, pl.y/pl.p.MMPerUnit, pl.heading
	pl.mu.Unlock()
	pl.store.Update(func(k *drs.Kart) {
		k.X, k.Y, k.Heading = math.Max(x, 0), math.Max(y, 0), h
	})
}

// Pose returns the position in DRS units and the heading in degrees.
func (pl *Plant) Pose() (x, y, heading float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.x / pl.p.MMPerUnit, pl.y / pl.p.MMPerUnit, pl.heading
}
