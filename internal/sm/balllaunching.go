package sm

import (
	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
)

const (
	BallEntry racekart.StateID = iota
	IRAlign
	Launch
	BallExit
)

// BallLaunching lines the kart up on the IR beacon, fires the balls and
// backs out. Each phase is a chain of timed maneuvers; the phase ends on
// the MotorTimeout after its last step.
type BallLaunching struct {
	m          *racekart.Machine
	entry      *racekart.Chain
	launch     *racekart.Chain
	exit       *racekart.Chain
	confirming bool
}

func NewBallLaunching(hw Hardware, cfg config.BallLaunch, post Poster, log zerolog.Logger) *BallLaunching {
	b := &BallLaunching{}
	mo, ln := hw.Motion, hw.Launcher

	b.entry = racekart.NewChain(
		racekart.Step{Name: "backward", Do: func() { mo.BackwardBias(cfg.Backward, cfg.BackwardMS) }},
		racekart.Step{Name: "pause", Do: func() { mo.Stop(); mo.Wait(cfg.PauseMS) }},
		racekart.Step{Name: "forward", Do: func() { mo.ForwardBias(cfg.Forward, cfg.ForwardMS) }},
	)
	entry := &racekart.State{ID: BallEntry, Name: "ENTRY", Initial: true}
	entry.OnEntry(func(bool) {
		b.entry.Reset()
		mo.SetGains(cfg.PivotGains)
		mo.Pivot(false, cfg.PivotRPM, cfg.PivotTicks)
	})
	entry.OnExit(mo.Cancel)
	b.entry.Bind(entry)
	entry.On(racekart.MotorTimeout, IRAlign, nil, nil)

	// A beacon edge only arms the confirmation timer; a loss before it
	// expires cancels it.
	align := &racekart.State{ID: IRAlign, Name: "IR_ALIGN"}
	align.OnEntry(func(bool) {
		b.confirming = false
		mo.RotateDuty(cfg.AlignCW, cfg.AlignDuty)
	})
	align.OnExit(mo.Cancel)
	align.Handle(racekart.IRBeaconDetected, nil, func(racekart.Event) {
		b.confirming = true
		mo.Wait(cfg.ConfirmMS)
	})
	align.Handle(racekart.IRBeaconLost, nil, func(racekart.Event) {
		b.confirming = false
		mo.Cancel()
	})
	align.On(racekart.MotorTimeout, Launch, func(racekart.Event) bool { return b.confirming }, func(racekart.Event) { mo.Stop() })

	steps := make([]racekart.Step, 0, 2*cfg.Feeds+1)
	for i := 0; i < cfg.Feeds; i++ {
		steps = append(steps,
			racekart.Step{Name: "extend", Do: func() { ln.ServoForward(); mo.Wait(cfg.ServoMS) }},
			racekart.Step{Name: "retract", Do: func() { ln.ServoReverse(); mo.Wait(cfg.ServoMS) }},
		)
	}
	steps = append(steps, racekart.Step{Name: "shooter off", Do: func() { ln.ShooterOff(); mo.Wait(cfg.SpinDownMS) }})
	b.launch = racekart.NewChain(steps...)
	launch := &racekart.State{ID: Launch, Name: "LAUNCH"}
	launch.OnEntry(func(bool) {
		b.launch.Reset()
		ln.ShooterOn()
		mo.Wait(cfg.SpinUpMS)
	})
	launch.OnExit(mo.Cancel)
	b.launch.Bind(launch)
	launch.On(racekart.MotorTimeout, BallExit, nil, nil)

	b.exit = racekart.NewChain(
		racekart.Step{Name: "rotate", Do: func() { mo.Rotate(false, cfg.ExitRotateRPM, cfg.ExitRotateMS) }},
	)
	exit := &racekart.State{ID: BallExit, Name: "EXIT"}
	exit.OnEntry(func(bool) {
		b.exit.Reset()
		mo.ForwardBias(cfg.ExitForward, cfg.ExitForwardMS)
	})
	exit.OnExit(mo.Cancel)
	b.exit.Bind(exit)
	exit.Handle(racekart.MotorTimeout, nil, func(racekart.Event) {
		log.Info().Msg("ball launching done")
		post(racekart.NewEvent(racekart.BallLaunchingExit))
	})

	b.m = racekart.MustMachine("ball_launching", entry, align, launch, exit)
	b.m.SetLogger(log)
	return b
}

// Start enters the machine; the sequence always begins at ENTRY.
func (b *BallLaunching) Start(bool) { b.m.Start(false) }

func (b *BallLaunching) Stop()                                 { b.m.Stop() }
func (b *BallLaunching) Run(evt racekart.Event) racekart.Event { return b.m.Run(evt) }
func (b *BallLaunching) Current() racekart.StateID             { return b.m.Current() }

// Chains returns the entry, launch and exit step lists.
func (b *BallLaunching) Chains() (entry, launch, exit *racekart.Chain) {
	return b.entry, b.launch, b.exit
}
