package sm

import (
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
)

const (
	PlayingRacing racekart.StateID = iota
	PlayingCrossingObstacle
	PlayingBallLaunching
)

// Playing selects which of Racing, ObstacleCrossing and BallLaunching is
// in control.
type Playing struct {
	m        *racekart.Machine
	racing   *Racing
	obstacle *ObstacleCrossing
	ball     *BallLaunching
}

func NewPlaying(hw Hardware, cfg config.Config, post Poster, log zerolog.Logger) *Playing {
	p := &Playing{
		racing:   NewRacing(hw, cfg, post, log),
		obstacle: NewObstacleCrossing(hw, cfg.Obstacle, post, log),
		ball:     NewBallLaunching(hw, cfg.BallLaunch, post, log),
	}

	racing := child(PlayingRacing, "RACING", p.racing)
	racing.Initial = true
	racing.On(racekart.ObstacleCrossingEntry, PlayingCrossingObstacle, nil, nil)
	racing.On(racekart.ObstacleCrossingStart, PlayingCrossingObstacle, nil, nil)
	racing.On(racekart.BallLaunchingEntry, PlayingBallLaunching, nil, nil)
	racing.On(racekart.BallLaunchingStart, PlayingBallLaunching, nil, nil)

	obstacle := child(PlayingCrossingObstacle, "CROSSING_OBSTACLE", p.obstacle)
	obstacle.On(racekart.ObstacleCrossingExit, PlayingRacing, nil, nil)

	ball := child(PlayingBallLaunching, "BALL_LAUNCHING", p.ball)
	ball.On(racekart.BallLaunchingExit, PlayingRacing, nil, nil).History = true

	p.m = racekart.MustMachine("playing", racing, obstacle, ball)
	p.m.SetLogger(log)
	return p
}

// Start enters the machine at RACING. A history start hands the flag to
// Racing so it resumes its leg; a fresh start begins a new race.
func (p *Playing) Start(history bool) {
	if !history {
		p.racing.NewRace()
	}
	p.m.Reset()
	p.m.Start(history)
}

func (p *Playing) Stop()                                 { p.m.Stop() }
func (p *Playing) Run(evt racekart.Event) racekart.Event { return p.m.Run(evt) }
func (p *Playing) Current() racekart.StateID             { return p.m.Current() }

func (p *Playing) Racing() *Racing                     { return p.racing }
func (p *Playing) ObstacleCrossing() *ObstacleCrossing { return p.obstacle }
func (p *Playing) BallLaunching() *BallLaunching       { return p.ball }

// Active returns the machine in control.
func (p *Playing) Active() Submachine {
	switch p.m.Current() {
	case PlayingCrossingObstacle:
		return p.obstacle
	case PlayingBallLaunching:
		return p.ball
	}
	return p.racing
}

// Submachine is a machine owned by a state of its parent.
type Submachine interface {
	Start(history bool)
	Stop()
	Run(evt racekart.Event) racekart.Event
	Current() racekart.StateID
}

// child returns a state that runs sub for as long as it is current.
func child(id racekart.StateID, name string, sub Submachine) *racekart.State {
	s := &racekart.State{ID: id, Name: name}
	s.OnEntry(sub.Start)
	s.OnExit(sub.Stop)
	s.OnDuring(sub.Run)
	return s
}
