// Package sm holds the kart's state machines: Master, Playing, Racing,
// BallLaunching, ObstacleCrossing and Navigation. Master is the dispatcher
// service; every other machine is owned by the state above it.
package sm

import (
	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/drs"
)

// Motion is the drive command set. Timed and travel commands end with a
// MotorTimeout delivered to Master; Cancel drops that pending completion.
// Current reports whether a MotorTimeout's tag still names the latest
// command.
type Motion interface {
	Current(tag uint32) bool
	Stop()
	Cancel()
	Wait(ms uint32)
	SetGains(g config.Gains)
	ClearSumError()

	Forward(rpm float64, ms uint32)
	ForwardBias(b config.Bias, ms uint32)
	BackwardBias(b config.Bias, ms uint32)
	Rotate(cw bool, rpm float64, ms uint32)
	Pivot(cw bool, rpm float64, ticks uint32)
	ForwardDistance(rpm, mm float64)
	ForwardDuty(duty uint8)
	RotateDuty(cw bool, duty uint8)
}

// Launcher is the ball shooter: a flywheel motor and a feed servo.
type Launcher interface {
	ShooterOn()
	ShooterOff()
	ServoForward()
	ServoReverse()
}

// LED is the race status light.
type LED interface {
	Set(on bool)
}

// KartSource reads this kart's race record.
type KartSource interface {
	Kart() drs.Kart
}

// Poster queues an event for Master.
type Poster func(racekart.Event)

// Hardware bundles what the machines drive.
type Hardware struct {
	Motion   Motion
	Launcher Launcher
	LED      LED
	Kart     KartSource
}
