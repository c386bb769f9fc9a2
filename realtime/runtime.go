package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is called once per tick with the tick number (starting at 1).
type TickFunc func(tick uint64)

// Runtime runs a TickFunc at a fixed rate on its own goroutine.
type Runtime struct {
	name     string
	fn       TickFunc
	tickRate time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	tickNum uint64
	running bool

	// Control
	ticker     *time.Ticker
	tickCancel context.CancelFunc
	stopped    chan struct{}
}

// Config configures a Runtime.
type Config struct {
	TickRate time.Duration // default 1ms
	Logger   zerolog.Logger
}

var ErrRunning = errors.New("realtime: runtime already running")

// NewRuntime creates a stopped runtime.
func NewRuntime(name string, fn TickFunc, cfg Config) *Runtime {
	if cfg.TickRate <= 0 {
		cfg.TickRate = time.Millisecond
	}
	return &Runtime{
		name:     name,
		fn:       fn,
		tickRate: cfg.TickRate,
		log:      cfg.Logger.With().Str("task", name).Logger(),
	}
}

// Start begins tick-based execution.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.running {
		return ErrRunning
	}
	rt.running = true

	var tickCtx context.Context
	tickCtx, rt.tickCancel = context.WithCancel(ctx)
	rt.ticker = time.NewTicker(rt.tickRate)
	rt.stopped = make(chan struct{})

	go rt.tickLoop(tickCtx, rt.ticker, rt.stopped)

	rt.log.Debug().Dur("rate", rt.tickRate).Msg("periodic task started")
	return nil
}

// Stop halts the loop and waits for the current tick to finish.
// Safe to call on a stopped runtime.
func (rt *Runtime) Stop() error {
	rt.mu.Lock()
	if !rt.running {
		rt.mu.Unlock()
		return nil
	}
	rt.running = false
	rt.tickCancel()
	rt.ticker.Stop()
	stopped := rt.stopped
	rt.mu.Unlock()

	<-stopped
	return nil
}

// Step runs one tick synchronously.
func (rt *Runtime) Step() {
	rt.runTick()
}

// TickNumber returns the number of ticks run so far.
func (rt *Runtime) TickNumber() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tickNum
}

func (rt *Runtime) tickLoop(ctx context.Context, ticker *time.Ticker, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.runTick()
		}
	}
}

// runTick processes one tick with panic recovery.
func (rt *Runtime) runTick() {
	rt.mu.Lock()
	rt.tickNum++
	n := rt.tickNum
	rt.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			rt.log.Error().Interface("panic", r).Uint64("tick", n).Msg("recovered panic in periodic task")
		}
	}()
	rt.fn(n)
}
