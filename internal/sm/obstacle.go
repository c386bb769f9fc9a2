package sm

import (
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
)

const (
	ObstacleEntry racekart.StateID = iota
	Crossing
	ObstacleExit
)

// ObstacleCrossing turns onto the obstacle, drives over it until the
// bumper hits the far wall and turns back onto the course.
type ObstacleCrossing struct {
	m     *racekart.Machine
	entry *racekart.Chain
	exit  *racekart.Chain
}

func NewObstacleCrossing(hw Hardware, cfg config.Obstacle, post Poster, log zerolog.Logger) *ObstacleCrossing {
	o := &ObstacleCrossing{}
	mo := hw.Motion

	o.entry = racekart.NewChain(
		racekart.Step{Name: "backward", Do: func() { mo.BackwardBias(cfg.Backward, cfg.BackwardMS) }},
	)
	entry := &racekart.State{ID: ObstacleEntry, Name: "ENTRY", Initial: true}
	entry.OnEntry(func(bool) {
		o.entry.Reset()
		mo.SetGains(cfg.PivotGains)
		mo.Pivot(true, cfg.PivotRPM, cfg.PivotTicks)
	})
	entry.OnExit(mo.Cancel)
	o.entry.Bind(entry)
	entry.On(racekart.MotorTimeout, Crossing, nil, nil)

	crossing := &racekart.State{ID: Crossing, Name: "CROSSING"}
	crossing.OnEntry(func(bool) { mo.ForwardDuty(cfg.CrossingDuty) })
	crossing.OnExit(mo.Cancel)
	crossing.On(racekart.BumpDetected, ObstacleExit, nil, func(racekart.Event) { mo.Stop() })

	o.exit = racekart.NewChain()
	exit := &racekart.State{ID: ObstacleExit, Name: "EXIT"}
	exit.OnEntry(func(bool) {
		o.exit.Reset()
		mo.SetGains(cfg.PivotGains)
		mo.Pivot(true, cfg.PivotRPM, cfg.ExitPivotTicks)
	})
	exit.OnExit(mo.Cancel)
	o.exit.Bind(exit)
	exit.Handle(racekart.MotorTimeout, nil, func(racekart.Event) {
		log.Info().Msg("obstacle crossed")
		post(racekart.NewEvent(racekart.ObstacleCrossingExit))
	})

	o.m = racekart.MustMachine("obstacle_crossing", entry, crossing, exit)
	o.m.SetLogger(log)
	return o
}

// Start enters the machine; the sequence always begins at ENTRY.
func (o *ObstacleCrossing) Start(bool) { o.m.Start(false) }

func (o *ObstacleCrossing) Stop()                                 { o.m.Stop() }
func (o *ObstacleCrossing) Run(evt racekart.Event) racekart.Event { return o.m.Run(evt) }
func (o *ObstacleCrossing) Current() racekart.StateID             { return o.m.Current() }

// Chains returns the entry and exit step lists.
func (o *ObstacleCrossing) Chains() (entry, exit *racekart.Chain) {
	return o.entry, o.exit
}
