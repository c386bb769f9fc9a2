package motor

import (
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/dispatch"
)

// Timer is the part of dispatch.Timers the drive needs.
type Timer interface {
	Arm(id dispatch.TimerID, owner dispatch.ServiceID, ms uint32) uint32
	Stop(id dispatch.TimerID)
}

// Drive is the set of composite motion commands the state machines issue.
// A timed command arms the drive-motor timer for its owner; a tick command
// arms a travel target. Either way the owner later receives MotorTimeout.
// Every command replaces whatever the previous one left pending. A timed
// command given 0 ms runs until replaced.
//
// Every command, Cancel and Stop bump the command generation. The service
// tags MotorTimeout with it, so a completion queued for a command that has
// since been replaced is recognizably stale.
type Drive struct {
	ctrl      *Controller
	timers    Timer
	owner     dispatch.ServiceID
	mmPerTick float64
	gen       atomic.Uint32
	log       zerolog.Logger
}

func NewDrive(ctrl *Controller, timers Timer, owner dispatch.ServiceID, cfg config.Config, log zerolog.Logger) *Drive {
	return &Drive{
		ctrl:      ctrl,
		timers:    timers,
		owner:     owner,
		mmPerTick: math.Pi * cfg.Motor.WheelDiameterMM / float64(cfg.Encoder.PulsesPerRev),
		log:       log,
	}
}

func (d *Drive) Controller() *Controller {
	return d.ctrl
}

// Ticks converts a travel distance to encoder edges.
func (d *Drive) Ticks(mm float64) uint32 {
	if mm <= 0 {
		return 0
	}
	return uint32(mm / d.mmPerTick)
}

// Generation returns the current command generation. It is never 0.
func (d *Drive) Generation() uint32 {
	if g := d.gen.Load(); g != 0 {
		return g
	}
	return d.bump()
}

// Current reports whether a MotorTimeout tagged tag belongs to the latest
// command. Untagged events (tag 0) are injected by hand and always pass.
func (d *Drive) Current(tag uint32) bool {
	return tag == 0 || tag == d.Generation()
}

func (d *Drive) bump() uint32 {
	for {
		g := d.gen.Add(1)
		if g != 0 {
			return g
		}
	}
}

// Cancel invalidates the pending timer and travel target without touching
// the wheels.
func (d *Drive) Cancel() {
	d.bump()
	d.timers.Stop(dispatch.DriveMotorTimer)
	d.ctrl.CancelTicks()
}

// Stop halts both wheels and cancels anything pending.
func (d *Drive) Stop() {
	d.bump()
	d.timers.Stop(dispatch.DriveMotorTimer)
	d.ctrl.Stop()
	d.log.Debug().Msg("stop")
}

// Wait arms the drive timer without changing the motion.
func (d *Drive) Wait(ms uint32) {
	d.bump()
	d.timers.Arm(dispatch.DriveMotorTimer, d.owner, ms)
}

func (d *Drive) SetGains(g config.Gains) {
	d.ctrl.SetGains(g)
}

func (d *Drive) ClearSumError() {
	d.ctrl.ClearSumError()
}

func (d *Drive) Forward(rpm float64, ms uint32) {
	d.ForwardBias(config.Bias{Left: rpm, Right: rpm}, ms)
}

func (d *Drive) Backward(rpm float64, ms uint32) {
	d.BackwardBias(config.Bias{Left: rpm, Right: rpm}, ms)
}

// ForwardBias drives forward with distinct wheel speeds for ms.
func (d *Drive) ForwardBias(b config.Bias, ms uint32) {
	d.timed("forward", b, Forward, Forward, ms)
}

func (d *Drive) BackwardBias(b config.Bias, ms uint32) {
	d.timed("backward", b, Backward, Backward, ms)
}

// Rotate turns in place for ms.
func (d *Drive) Rotate(cw bool, rpm float64, ms uint32) {
	l, r := spin(cw)
	d.timed("rotate", config.Bias{Left: rpm, Right: rpm}, l, r, ms)
}

// Pivot turns in place until the wheels have averaged ticks edges.
func (d *Drive) Pivot(cw bool, rpm float64, ticks uint32) {
	l, r := spin(cw)
	d.travel("pivot", rpm, l, r, ticks)
}

// ForwardDistance drives forward until mm have been covered.
func (d *Drive) ForwardDistance(rpm, mm float64) {
	d.travel("forward_distance", rpm, Forward, Forward, d.Ticks(mm))
}

func (d *Drive) ForwardTicks(rpm float64, ticks uint32) {
	d.travel("forward_ticks", rpm, Forward, Forward, ticks)
}

// ForwardDuty drives forward open-loop with no end condition.
func (d *Drive) ForwardDuty(duty uint8) {
	d.Cancel()
	d.ctrl.SetDuty(Left, duty, Forward)
	d.ctrl.SetDuty(Right, duty, Forward)
	d.log.Debug().Str("cmd", "forward_duty").Uint8("duty", duty).Msg("drive")
}

// RotateDuty turns in place open-loop with no end condition.
func (d *Drive) RotateDuty(cw bool, duty uint8) {
	d.Cancel()
	l, r := spin(cw)
	d.ctrl.SetDuty(Left, duty, l)
	d.ctrl.SetDuty(Right, duty, r)
	d.log.Debug().Str("cmd", "rotate_duty").Bool("cw", cw).Uint8("duty", duty).Msg("drive")
}

func (d *Drive) timed(cmd string, b config.Bias, l, r Direction, ms uint32) {
	d.bump()
	d.ctrl.CancelTicks()
	d.ctrl.SetRPM(Left, b.Left, l)
	d.ctrl.SetRPM(Right, b.Right, r)
	if ms > 0 {
		d.Wait(ms)
	} else {
		d.timers.Stop(dispatch.DriveMotorTimer)
	}
	d.log.Debug().Str("cmd", cmd).Float64("left", b.Left).Float64("right", b.Right).Uint32("ms", ms).Msg("drive")
}

func (d *Drive) travel(cmd string, rpm float64, l, r Direction, ticks uint32) {
	d.bump()
	d.timers.Stop(dispatch.DriveMotorTimer)
	d.ctrl.ArmTicks(ticks)
	d.ctrl.SetRPM(Left, rpm, l)
	d.ctrl.SetRPM(Right, rpm, r)
	d.log.Debug().Str("cmd", cmd).Float64("rpm", rpm).Uint32("ticks", ticks).Msg("drive")
}

func spin(cw bool) (left, right Direction) {
	if cw {
		return Forward, Backward
	}
	return Backward, Forward
}
