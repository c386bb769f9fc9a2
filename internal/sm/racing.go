package sm

import (
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/drs"
)

const (
	Straight racekart.StateID = iota
	Corner
)

// Racing drives the four legs of the course. A leg ends when the bumper
// hits the corner wall; the corner maneuver then turns the kart onto the
// next leg. On the leg feeding a side quest the drive is shorter, and its
// end hands control to Playing instead.
type Racing struct {
	m      *racekart.Machine
	hw     Hardware
	cfg    config.Racing
	post   Poster
	nav    *Navigation
	corner *racekart.Chain
	log    zerolog.Logger

	straight          int // 1..4
	willCrossObstacle bool
	willBallLaunch    bool
	navigating        bool
}

func NewRacing(hw Hardware, cfg config.Config, post Poster, log zerolog.Logger) *Racing {
	r := &Racing{
		hw:                hw,
		cfg:               cfg.Racing,
		post:              post,
		log:               log,
		straight:          1,
		willCrossObstacle: true,
		willBallLaunch:    true,
	}
	if cfg.Racing.NavigateLegs {
		r.nav = NewNavigation(hw.Motion, hw.Kart, cfg.Navigation, log)
	}
	c := cfg.Racing.Corner
	back := config.Bias{Left: c.BackoffRPM, Right: c.BackoffRPM}

	straight := &racekart.State{ID: Straight, Name: "STRAIGHT", Initial: true}
	straight.OnEntry(r.enterStraight)
	straight.OnExit(r.exitStraight)
	straight.OnDuring(r.duringStraight)
	straight.Handle(racekart.MotorTimeout, r.feeding(cfg.Racing.ObstacleStraight, &r.willCrossObstacle),
		func(racekart.Event) { r.handOff(racekart.ObstacleCrossingEntry, &r.willCrossObstacle) })
	straight.Handle(racekart.MotorTimeout, r.feeding(cfg.Racing.BallStraight, &r.willBallLaunch),
		func(racekart.Event) { r.handOff(racekart.BallLaunchingEntry, &r.willBallLaunch) })
	straight.Handle(racekart.MotorTimeout, nil, func(racekart.Event) { r.cruise() })
	straight.On(racekart.BumpDetected, Corner, nil, nil)

	r.corner = racekart.NewChain(
		racekart.Step{Name: "pivot", Do: func() {
			hw.Motion.Pivot(false, c.PivotRPM, c.PivotTicks)
		}},
		racekart.Step{Name: "back off", Do: func() {
			hw.Motion.BackwardBias(back, c.ReturnBackoffMS)
			hw.Motion.ClearSumError()
		}},
	)
	corner := &racekart.State{ID: Corner, Name: "CORNER"}
	corner.OnEntry(func(bool) {
		r.corner.Reset()
		hw.Motion.BackwardBias(back, c.BackoffMS)
	})
	corner.OnExit(hw.Motion.Cancel)
	r.corner.Bind(corner)
	corner.On(racekart.MotorTimeout, Straight, nil, func(racekart.Event) {
		hw.Motion.Stop()
		r.advance()
	})

	r.m = racekart.MustMachine("racing", straight, corner)
	r.m.SetLogger(log)
	return r
}

// NewRace puts the kart back on the first leg and re-arms both side quests.
func (r *Racing) NewRace() {
	r.straight = 1
	r.willCrossObstacle = true
	r.willBallLaunch = true
}

// Start enters the machine. A fresh start places the kart on the leg its
// DRS position says it is on. Without a fix, or inside a side-quest area,
// the leg is kept.
func (r *Racing) Start(history bool) {
	if !history {
		k := r.hw.Kart.Kart()
		if z := k.Zone(); z.OnCourse() {
			r.straight = drs.StartingStraight(z)
		}
		if k.ObstacleCompleted {
			r.willCrossObstacle = false
		}
	}
	r.m.Start(history)
}

func (r *Racing) Stop()                                 { r.m.Stop() }
func (r *Racing) Run(evt racekart.Event) racekart.Event { return r.m.Run(evt) }
func (r *Racing) Current() racekart.StateID             { return r.m.Current() }
func (r *Racing) CurrentStraight() int                  { return r.straight }
func (r *Racing) Flags() (willCrossObstacle, willBallLaunch bool) {
	return r.willCrossObstacle, r.willBallLaunch
}

// Navigation returns the leg navigator, nil unless legs are navigated.
func (r *Racing) Navigation() *Navigation { return r.nav }

// SetStraight overrides the current leg.
func (r *Racing) SetStraight(leg int) {
	if leg >= 1 && leg <= 4 {
		r.straight = leg
	}
}

// CornerChain exposes the corner maneuver's step list.
func (r *Racing) CornerChain() *racekart.Chain { return r.corner }

func (r *Racing) enterStraight(history bool) {
	if r.straight == 1 {
		r.willBallLaunch = true
	}
	r.navigating = false
	m := r.hw.Motion
	switch {
	case history && r.questDone():
		// Back from the side quest on this leg: finish it at cruise.
		r.cruise()
	case r.straight == r.cfg.BallStraight && r.willBallLaunch:
		m.SetGains(r.cfg.FeedGains)
		m.ForwardDistance(r.cfg.BallFeedRPM, r.cfg.BallFeedMM)
	case r.straight == r.cfg.ObstacleStraight && r.willCrossObstacle:
		m.SetGains(r.cfg.FeedGains)
		m.ForwardDistance(r.cfg.ObstacleFeedRPM, r.cfg.ObstacleFeedMM)
	case r.nav != nil:
		r.navigating = true
		m.SetGains(r.cfg.NormalGains)
		r.nav.Aim(r.cfg.Waypoints[r.straight-1])
		r.nav.Start(false)
	default:
		m.SetGains(r.cfg.NormalGains)
		m.ForwardDistance(r.cfg.NormalRPM, r.cfg.NormalDistanceMM)
	}
}

func (r *Racing) exitStraight() {
	if r.navigating {
		r.nav.Stop()
		r.navigating = false
	}
	r.hw.Motion.Cancel()
}

func (r *Racing) duringStraight(evt racekart.Event) racekart.Event {
	if !r.navigating {
		return evt
	}
	evt = r.nav.Run(evt)
	if evt.Kind == racekart.NavigationArrived {
		r.cruise()
		return racekart.None
	}
	return evt
}

// questDone reports whether this leg feeds a side quest that has already
// been handed off.
func (r *Racing) questDone() bool {
	return (r.straight == r.cfg.BallStraight && !r.willBallLaunch) ||
		(r.straight == r.cfg.ObstacleStraight && !r.willCrossObstacle)
}

func (r *Racing) feeding(leg int, flag *bool) racekart.Guard {
	return func(racekart.Event) bool {
		return r.straight == leg && *flag
	}
}

func (r *Racing) handOff(k racekart.Kind, flag *bool) {
	r.hw.Motion.Stop()
	*flag = false
	r.log.Info().Int("straight", r.straight).Stringer("event", k).Msg("hand off")
	r.post(racekart.NewEvent(k))
}

// cruise holds the biased cruise speed until the bump ends the leg.
func (r *Racing) cruise() {
	r.hw.Motion.SetGains(r.cfg.CruiseGains)
	r.hw.Motion.ForwardBias(r.cfg.Cruise, 0)
}

func (r *Racing) advance() {
	r.straight = r.straight%4 + 1
	if r.straight == 1 {
		r.willBallLaunch = true
	}
	r.log.Debug().Int("straight", r.straight).Msg("next leg")
}
