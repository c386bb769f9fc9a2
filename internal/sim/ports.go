package sim

import (
	"sync"

	"github.com/rs/zerolog"
)

// Launcher logs shooter and feed servo commands and counts fed balls.
type Launcher struct {
	mu       sync.Mutex
	spinning bool
	extended bool
	fed      int
	log      zerolog.Logger
}

func NewLauncher(log zerolog.Logger) *Launcher {
	return &Launcher{log: log.With().Str("port", "launcher").Logger()}
}

func (l *Launcher) ShooterOn() {
	l.mu.Lock()
	l.spinning = true
	l.mu.Unlock()
	l.log.Info().Msg("shooter on")
}

func (l *Launcher) ShooterOff() {
	l.mu.Lock()
	l.spinning = false
	l.mu.Unlock()
	l.log.Debug().Msg("shooter off")
}

// ServoForward pushes a ball into the shooter. A ball only counts as
// launched when the shooter is spinning.
func (l *Launcher) ServoForward() {
	l.mu.Lock()
	l.extended = true
	launched := l.spinning
	if launched {
		l.fed++
	}
	n := l.fed
	l.mu.Unlock()
	l.log.Info().Bool("launched", launched).Int("balls", n).Msg("servo forward")
}

func (l *Launcher) ServoReverse() {
	l.mu.Lock()
	l.extended = false
	l.mu.Unlock()
	l.log.Debug().Msg("servo reverse")
}

// Launched returns the number of balls fed into a spinning shooter.
func (l *Launcher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fed
}

func (l *Launcher) Spinning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spinning
}

// LED is the race indicator.
type LED struct {
	mu  sync.Mutex
	on  bool
	log zerolog.Logger
}

func NewLED(log zerolog.Logger) *LED {
	return &LED{log: log.With().Str("port", "led").Logger()}
}

func (d *LED) Set(on bool) {
	d.mu.Lock()
	changed := d.on != on
	d.on = on
	d.mu.Unlock()
	if changed {
		d.log.Info().Bool("on", on).Msg("race led")
	}
}

func (d *LED) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}
