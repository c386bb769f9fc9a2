package sm

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/drs"
)

// recMotion records every drive command as a short string. Tagged
// timeouts are current only while they match gen.
type recMotion struct {
	log []string
	gen uint32
}

func (m *recMotion) Current(tag uint32) bool { return tag == 0 || tag == m.gen }

func (m *recMotion) add(format string, args ...any) {
	m.log = append(m.log, fmt.Sprintf(format, args...))
}

func (m *recMotion) take() []string {
	out := m.log
	m.log = nil
	return out
}

func rot(cw bool) string {
	if cw {
		return "cw"
	}
	return "ccw"
}

func (m *recMotion) Stop()                   { m.add("stop") }
func (m *recMotion) Cancel()                 { m.add("cancel") }
func (m *recMotion) Wait(ms uint32)          { m.add("wait %d", ms) }
func (m *recMotion) SetGains(g config.Gains) { m.add("gains %g/%g/%g", g.Kp, g.Ki, g.Kd) }
func (m *recMotion) ClearSumError()          { m.add("clear") }
func (m *recMotion) Forward(rpm float64, ms uint32) {
	m.add("forward %g %d", rpm, ms)
}
func (m *recMotion) ForwardBias(b config.Bias, ms uint32) {
	m.add("forward_bias %g/%g %d", b.Left, b.Right, ms)
}
func (m *recMotion) BackwardBias(b config.Bias, ms uint32) {
	m.add("backward_bias %g/%g %d", b.Left, b.Right, ms)
}
func (m *recMotion) Rotate(cw bool, rpm float64, ms uint32) {
	m.add("rotate %s %g %d", rot(cw), rpm, ms)
}
func (m *recMotion) Pivot(cw bool, rpm float64, ticks uint32) {
	m.add("pivot %s %g %d", rot(cw), rpm, ticks)
}
func (m *recMotion) ForwardDistance(rpm, mm float64) {
	m.add("forward_distance %g %g", rpm, mm)
}
func (m *recMotion) ForwardDuty(duty uint8) { m.add("forward_duty %d", duty) }
func (m *recMotion) RotateDuty(cw bool, duty uint8) {
	m.add("rotate_duty %s %d", rot(cw), duty)
}

type recLauncher struct {
	log []string
}

func (l *recLauncher) ShooterOn()    { l.log = append(l.log, "shooter on") }
func (l *recLauncher) ShooterOff()   { l.log = append(l.log, "shooter off") }
func (l *recLauncher) ServoForward() { l.log = append(l.log, "servo forward") }
func (l *recLauncher) ServoReverse() { l.log = append(l.log, "servo reverse") }

type recLED struct {
	on bool
}

func (l *recLED) Set(on bool) { l.on = on }

// rig runs Master with recording hardware. Events Master posts to itself
// are held until flush, the way the dispatcher would queue them.
type rig struct {
	t        *testing.T
	motion   *recMotion
	launcher *recLauncher
	led      *recLED
	store    *drs.Store
	posted   []racekart.Event
	master   *Master
}

func newRig(t *testing.T, cfg config.Config, kart drs.Kart) *rig {
	t.Helper()
	r := &rig{
		t:        t,
		motion:   &recMotion{},
		launcher: &recLauncher{},
		led:      &recLED{},
		store:    drs.NewStore(nil),
	}
	r.store.Set(kart)
	hw := Hardware{Motion: r.motion, Launcher: r.launcher, LED: r.led, Kart: r.store}
	r.master = NewMaster(hw, cfg, func(e racekart.Event) { r.posted = append(r.posted, e) }, zerolog.Nop())
	r.master.Start()
	return r
}

// run delivers one event without draining what it posts.
func (r *rig) run(k racekart.Kind) {
	r.master.Run(racekart.NewEvent(k))
}

func (r *rig) flush() {
	for len(r.posted) > 0 {
		e := r.posted[0]
		r.posted = r.posted[1:]
		r.master.Run(e)
	}
}

func (r *rig) send(kinds ...racekart.Kind) {
	for _, k := range kinds {
		r.run(k)
		r.flush()
	}
}

func (r *rig) playing() *Playing { return r.master.Playing() }
func (r *rig) racing() *Racing   { return r.master.Playing().Racing() }

func (r *rig) expectMotion(want ...string) {
	r.t.Helper()
	if diff := cmp.Diff(want, r.motion.take()); diff != "" {
		r.t.Errorf("motion mismatch (-want +got):\n%s", diff)
	}
}

func (r *rig) expectStates(master, playing, leaf racekart.StateID) {
	r.t.Helper()
	if got := r.master.Current(); got != master {
		r.t.Fatalf("Expected master state %d, got %d", master, got)
	}
	if got := r.playing().Current(); got != playing {
		r.t.Fatalf("Expected playing state %d, got %d", playing, got)
	}
	if got := r.playing().Active().Current(); got != leaf {
		r.t.Fatalf("Expected leaf state %d, got %d", leaf, got)
	}
}

// Kart positions inside each leg.
var (
	onStraight1 = drs.Kart{X: 180, Y: 10, Flag: drs.FlagDropped}
	onStraight2 = drs.Kart{X: 50, Y: 80, Flag: drs.FlagDropped}
	onStraight3 = drs.Kart{X: 150, Y: 150, Flag: drs.FlagDropped}
	onStraight4 = drs.Kart{X: 240, Y: 100, Flag: drs.FlagDropped}
)
