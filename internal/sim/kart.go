package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/dispatch"
	"github.com/comalice/racekart/internal/drs"
	"github.com/comalice/racekart/internal/motor"
	"github.com/comalice/racekart/internal/sm"
	"github.com/comalice/racekart/realtime"
)

// Kart is the full robot wired against the simulated plant.
type Kart struct {
	Dispatcher *dispatch.Dispatcher
	Plant      *Plant
	Controller *motor.Controller
	Drive      *motor.Drive
	Master     *sm.Master
	Store      *drs.Store
	Launcher   *Launcher
	LED        *LED

	cfg      config.Config
	ms       uint64
	runtimes []*realtime.Runtime
	log      zerolog.Logger
}

// KartOption applies configuration to a Kart.
type KartOption func(*kartOptions)

type kartOptions struct {
	params Params
	wrap   func(name string, svc dispatch.Service) dispatch.Service
	drs    bool
}

// WithParams replaces the plant parameters.
func WithParams(p Params) KartOption {
	return func(o *kartOptions) { o.params = p }
}

// WithServiceWrapper lets the caller decorate each service before it is
// registered, e.g. to trace deliveries.
func WithServiceWrapper(fn func(name string, svc dispatch.Service) dispatch.Service) KartOption {
	return func(o *kartOptions) { o.wrap = fn }
}

// WithDRSEvents posts DRSUpdated to Master on every pose refresh.
func WithDRSEvents() KartOption {
	return func(o *kartOptions) { o.drs = true }
}

// NewKart assembles the dispatcher, drive and state machines. Master is
// started and waits for RaceStarted.
func NewKart(cfg config.Config, log zerolog.Logger, opts ...KartOption) (*Kart, error) {
	o := kartOptions{params: DefaultParams()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wrap == nil {
		o.wrap = func(_ string, svc dispatch.Service) dispatch.Service { return svc }
	}

	k := &Kart{cfg: cfg, log: log}
	k.Dispatcher = dispatch.New(
		dispatch.WithQueueSize(cfg.Dispatch.QueueSize),
		dispatch.WithLogger(log.With().Str("component", "dispatch").Logger()),
	)
	toMaster := k.Dispatcher.Poster(dispatch.MasterService)

	var notify func()
	if o.drs {
		notify = func() { toMaster(racekart.NewEvent(racekart.DRSUpdated)) }
	}
	k.Store = drs.NewStore(notify)
	k.Plant = NewPlant(cfg, o.params, nil, k.Store, log.With().Str("component", "plant").Logger())
	k.Controller = motor.NewController(cfg, k.Plant,
		motor.WithLogger(log.With().Str("component", "motor").Logger()),
		motor.WithArrival(motor.Arrival(k.Dispatcher.Poster(dispatch.DriveService))),
	)
	k.Plant.SetEncoders(k.Controller)

	driveLog := log.With().Str("component", "drive").Logger()
	k.Drive = motor.NewDrive(k.Controller, k.Dispatcher.Timers(), dispatch.DriveService, cfg, driveLog)
	k.Launcher = NewLauncher(log)
	k.LED = NewLED(log)
	hw := sm.Hardware{Motion: k.Drive, Launcher: k.Launcher, LED: k.LED, Kart: k.Store}
	k.Master = sm.NewMaster(hw, cfg, toMaster, log)

	svc := motor.NewService(k.Drive, toMaster, driveLog)
	if err := k.Dispatcher.Register(dispatch.DriveService, "drive", 2, o.wrap("drive", svc)); err != nil {
		return nil, fmt.Errorf("register drive: %w", err)
	}
	if err := k.Dispatcher.Register(dispatch.MasterService, "master", 1, o.wrap("master", k.Master)); err != nil {
		return nil, fmt.Errorf("register master: %w", err)
	}
	k.Master.Start()
	return k, nil
}

// Post queues evt for Master.
func (k *Kart) Post(evt racekart.Event) error {
	return k.Dispatcher.Post(dispatch.MasterService, evt)
}

// Step runs ms milliseconds of virtual time: control tick, plant, timers,
// then every event that results. Not for use while Start is running.
func (k *Kart) Step(ms int) {
	for range ms {
		k.ms++
		k.Controller.Tick(k.ms)
		k.Plant.Step(k.ms)
		k.Dispatcher.Timers().Tick(k.ms)
		k.Dispatcher.Drain(16)
	}
}

// Start runs the control loop, the plant and the timer service on their own
// periodic tasks. The caller runs the dispatcher.
func (k *Kart) Start(ctx context.Context) error {
	period := k.cfg.ControlPeriod()
	k.runtimes = []*realtime.Runtime{
		realtime.NewRuntime("control", k.Controller.Tick, realtime.Config{TickRate: period, Logger: k.log}),
		realtime.NewRuntime("plant", k.Plant.Step, realtime.Config{TickRate: time.Millisecond, Logger: k.log}),
		realtime.NewRuntime("timers", k.Dispatcher.Timers().Tick, realtime.Config{TickRate: time.Millisecond, Logger: k.log}),
	}
	for _, rt := range k.runtimes {
		if err := rt.Start(ctx); err != nil {
			k.Stop()
			return err
		}
	}
	return nil
}

// Stop halts the periodic tasks and the motors.
func (k *Kart) Stop() {
	for _, rt := range k.runtimes {
		_ = rt.Stop()
	}
	k.runtimes = nil
	k.Controller.Stop()
}
