package motor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart/internal/config"
)

type Direction uint8

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Actuator is the electrical layer of the drive: PWM duty and H-bridge
// direction per wheel.
type Actuator interface {
	SetDuty(w Wheel, duty uint8)
	SetDirection(w Wheel, dir Direction)
}

// Mode is how a wheel's duty is produced. The two modes are exclusive.
type Mode uint8

const (
	ClosedLoop Mode = iota // PID tracks a target RPM
	OpenLoop               // fixed duty
)

func (m Mode) String() string {
	if m == ClosedLoop {
		return "closed"
	}
	return "open"
}

type wheel struct {
	enc    *Encoder
	pid    PID
	mode   Mode
	target float64
	duty   uint8 // open-loop setpoint
	dir    Direction

	applied    uint8
	appliedDir Direction
	fresh      bool // nothing applied yet

	stallTicks uint32
	stalled    bool
}

// Controller is the periodic motor tier. Tick runs on its own goroutine;
// the dispatch loop only uses the setters, which are serialized with Tick.
type Controller struct {
	mu     sync.Mutex
	act    Actuator
	wheels [2]*wheel
	gains  config.Gains

	now            uint32 // capture clock
	ticksPerPeriod uint32
	stallFault     uint32 // control ticks

	targetTicks uint32
	tickArmed   bool
	tickGen     uint32
	onArrive    func(gen uint32)

	log zerolog.Logger
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithArrival sets the function called, outside the controller lock, when
// an armed tick target is reached. gen identifies the target.
func WithArrival(fn func(gen uint32)) Option {
	return func(c *Controller) {
		c.onArrive = fn
	}
}

func NewController(cfg config.Config, act Actuator, opts ...Option) *Controller {
	period := uint32(cfg.Motor.ControlPeriodUS)
	c := &Controller{
		act:            act,
		gains:          cfg.Motor.Default,
		ticksPerPeriod: uint32(uint64(cfg.Encoder.ClockHz) * uint64(period) / 1_000_000),
		log:            zerolog.Nop(),
	}
	if period > 0 {
		c.stallFault = cfg.Motor.StallFaultMS * 1000 / period
	}
	for i := range c.wheels {
		c.wheels[i] = &wheel{
			enc:   NewEncoder(cfg.Encoder),
			pid:   PID{Gains: cfg.Motor.Default},
			fresh: true,
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetArrival replaces the tick-target arrival callback.
func (c *Controller) SetArrival(fn func(gen uint32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onArrive = fn
}

// SetRPM puts w in closed-loop mode tracking rpm in direction dir. Coming
// from open-loop mode clears the accumulator.
func (c *Controller) SetRPM(w Wheel, rpm float64, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wh := c.wheels[w]
	if wh.mode != ClosedLoop {
		wh.pid.Reset()
		wh.mode = ClosedLoop
	}
	if rpm < 0 {
		rpm = 0
	}
	wh.target = rpm
	wh.dir = dir
}

// SetDuty puts w in open-loop mode at duty percent. Coming from closed-loop
// mode clears the accumulator.
func (c *Controller) SetDuty(w Wheel, duty uint8, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wh := c.wheels[w]
	if wh.mode != OpenLoop {
		wh.pid.Reset()
		wh.mode = OpenLoop
	}
	if duty > maxDuty {
		duty = maxDuty
	}
	wh.duty = duty
	wh.target = 0
	wh.dir = dir
}

// SetGains swaps the gain set of both wheels. The accumulator is kept.
func (c *Controller) SetGains(g config.Gains) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gains = g
	for _, wh := range c.wheels {
		wh.pid.Gains = g
	}
}

func (c *Controller) Gains() config.Gains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gains
}

// ClearSumError clears both accumulators.
func (c *Controller) ClearSumError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, wh := range c.wheels {
		wh.pid.Reset()
	}
}

// Stop zeroes both wheels immediately and drops any tick target. Each wheel
// keeps its mode.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTicks()
	for i, wh := range c.wheels {
		wh.target = 0
		wh.duty = 0
		c.apply(Wheel(i), wh, 0)
	}
}

// ArmTicks resets both edge counters and arms a travel target of n edges
// (averaged over the wheels). It returns the target's generation.
func (c *Controller) ArmTicks(n uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, wh := range c.wheels {
		wh.enc.ResetCount()
	}
	c.tickGen++
	c.targetTicks = n
	c.tickArmed = true
	return c.tickGen
}

// CancelTicks disarms the travel target and invalidates an arrival already
// reported for it.
func (c *Controller) CancelTicks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTicks()
}

// TicksCurrent reports whether gen is the latest travel target.
func (c *Controller) TicksCurrent(gen uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.tickGen
}

func (c *Controller) cancelTicks() {
	c.tickGen++
	c.tickArmed = false
}

// Capture feeds an encoder edge of w stamped on the capture clock.
func (c *Controller) Capture(w Wheel, stamp uint32) {
	c.mu.Lock()
	c.wheels[w].enc.Capture(stamp)
	var arrived func(uint32)
	gen := c.tickGen
	if c.tickArmed {
		avg := (c.wheels[Left].enc.Count() + c.wheels[Right].enc.Count()) / 2
		if avg >= c.targetTicks {
			c.tickArmed = false
			arrived = c.onArrive
		}
	}
	c.mu.Unlock()

	if arrived != nil {
		arrived(gen)
	}
}

// Now is the capture clock. It advances by one control period per Tick.
func (c *Controller) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Tick runs one control period. Its signature matches realtime.TickFunc.
func (c *Controller) Tick(uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.ticksPerPeriod

	for i, wh := range c.wheels {
		w := Wheel(i)
		var duty uint8
		rpm := wh.enc.RPM(c.now)
		switch wh.mode {
		case ClosedLoop:
			if wh.target > 0 {
				duty = uint8(wh.pid.Update(wh.target, rpm))
			}
		case OpenLoop:
			duty = wh.duty
		}
		c.trackStall(w, wh, rpm, duty)
		c.apply(w, wh, duty)
	}
}

// trackStall raises the stall fault for a closed-loop wheel commanded to
// move that shows no rotation at full duty for the fault window.
func (c *Controller) trackStall(w Wheel, wh *wheel, rpm float64, duty uint8) {
	if wh.mode != ClosedLoop || wh.target == 0 || rpm != 0 || duty < maxDuty {
		wh.stallTicks = 0
		if wh.stalled {
			c.log.Info().Stringer("wheel", w).Msg("stall cleared")
		}
		wh.stalled = false
		return
	}
	wh.stallTicks++
	if !wh.stalled && wh.stallTicks >= c.stallFault {
		wh.stalled = true
		c.log.Warn().Stringer("wheel", w).Float64("target_rpm", wh.target).Msg("wheel stalled")
	}
}

func (c *Controller) apply(w Wheel, wh *wheel, duty uint8) {
	if wh.fresh || wh.dir != wh.appliedDir {
		c.act.SetDirection(w, wh.dir)
		wh.appliedDir = wh.dir
	}
	if wh.fresh || duty != wh.applied {
		c.act.SetDuty(w, duty)
		wh.applied = duty
	}
	wh.fresh = false
}

// Stalled reports the stall fault of w.
func (c *Controller) Stalled(w Wheel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wheels[w].stalled
}

// RPM is the measured speed of w.
func (c *Controller) RPM(w Wheel) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wheels[w].enc.RPM(c.now)
}

// Duty is the duty last applied to w.
func (c *Controller) Duty(w Wheel) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wheels[w].applied
}

// Target returns the mode and setpoint of w: RPM in closed loop, duty
// percent in open loop.
func (c *Controller) Target(w Wheel) (Mode, float64, Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wh := c.wheels[w]
	if wh.mode == OpenLoop {
		return OpenLoop, float64(wh.duty), wh.dir
	}
	return ClosedLoop, wh.target, wh.dir
}

// Integral exposes the accumulator of w.
func (c *Controller) Integral(w Wheel) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wheels[w].pid.Integral()
}

// TargetTicks returns the armed travel target.
func (c *Controller) TargetTicks() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetTicks, c.tickArmed
}

// Count is the edge count of w since the last ArmTicks.
func (c *Controller) Count(w Wheel) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wheels[w].enc.Count()
}
