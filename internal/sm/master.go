package sm

import (
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
)

const (
	MasterWaitingStart racekart.StateID = iota
	MasterPlaying
	MasterPaused
	MasterWaitingFinished
)

// Master gates the whole kart on the race flag. It is the dispatcher
// service every event is posted to.
type Master struct {
	m       *racekart.Machine
	playing *Playing
	motion  Motion
	log     zerolog.Logger
}

func NewMaster(hw Hardware, cfg config.Config, post Poster, log zerolog.Logger) *Master {
	ms := &Master{
		playing: NewPlaying(hw, cfg, post, log),
		motion:  hw.Motion,
		log:     log,
	}
	idle := func(bool) {
		hw.Motion.Stop()
		hw.Launcher.ShooterOff()
	}

	waiting := &racekart.State{ID: MasterWaitingStart, Name: "WAITING_START", Initial: true}
	waiting.OnEntry(idle)
	waiting.On(racekart.RaceStarted, MasterPlaying, nil, nil)

	playing := child(MasterPlaying, "PLAYING", ms.playing)
	playing.OnEntry(func(history bool) {
		hw.LED.Set(true)
		ms.playing.Start(history)
	})
	playing.OnExit(func() {
		ms.playing.Stop()
		hw.LED.Set(false)
	})
	playing.On(racekart.RaceCaution, MasterPaused, nil, nil)
	playing.On(racekart.RaceFinished, MasterWaitingFinished, nil, nil)

	paused := &racekart.State{ID: MasterPaused, Name: "PAUSED"}
	paused.OnEntry(func(bool) { hw.Motion.Stop() })
	paused.On(racekart.RaceStarted, MasterPlaying, nil, nil).History = true

	finished := &racekart.State{ID: MasterWaitingFinished, Name: "WAITING_FINISHED"}
	finished.OnEntry(idle)
	finished.On(racekart.RaceStarted, MasterPlaying, nil, nil)

	ms.m = racekart.MustMachine("master", waiting, playing, paused, finished)
	ms.m.SetLogger(log)
	return ms
}

// Start enters WAITING_START.
func (ms *Master) Start() {
	ms.m.Start(false)
}

// Run dispatches one event through the hierarchy. Its signature makes
// Master a dispatch.Service. A MotorTimeout queued before the command it
// completes was replaced never reaches the machines.
func (ms *Master) Run(evt racekart.Event) {
	if evt.Kind == racekart.MotorTimeout && !ms.motion.Current(evt.Tag) {
		ms.log.Debug().Stringer("event", evt).Str("state", ms.m.CurrentName()).Msg("stale motor timeout dropped")
		return
	}
	if out := ms.m.Run(evt); !out.IsNone() {
		ms.log.Debug().Stringer("event", out).Str("state", ms.m.CurrentName()).Msg("event ignored")
	}
}

func (ms *Master) Current() racekart.StateID { return ms.m.Current() }
func (ms *Master) Playing() *Playing         { return ms.playing }

// Machines lists the active configuration from the top down.
func (ms *Master) Machines() []*racekart.Machine {
	out := []*racekart.Machine{ms.m}
	if ms.m.Current() != MasterPlaying && ms.m.Current() != MasterPaused {
		return out
	}
	out = append(out, ms.playing.m)
	switch ms.playing.m.Current() {
	case PlayingRacing:
		out = append(out, ms.playing.racing.m)
		if ms.playing.racing.navigating {
			out = append(out, ms.playing.racing.nav.m)
		}
	case PlayingCrossingObstacle:
		out = append(out, ms.playing.obstacle.m)
	case PlayingBallLaunching:
		out = append(out, ms.playing.ball.m)
	}
	return out
}
