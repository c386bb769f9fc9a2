// Package dispatch is the event substrate the state machines run on:
// prioritized services, a thread-safe Post, a run-to-completion dispatch
// loop and a millisecond timer service.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/comalice/racekart"
)

// ServiceID identifies a registered service.
type ServiceID uint8

// Service consumes events one at a time.
type Service interface {
	Run(evt racekart.Event)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(evt racekart.Event)

func (f ServiceFunc) Run(evt racekart.Event) { f(evt) }

var (
	ErrQueueFull      = errors.New("dispatch: event queue full")
	ErrUnknownService = errors.New("dispatch: unknown service")
	ErrDuplicate      = errors.New("dispatch: service already registered")
)

type service struct {
	name     string
	priority int
	svc      Service
}

// queued adds sequencing metadata for deterministic ordering.
type queued struct {
	evt      racekart.Event
	to       ServiceID
	seq      uint64
	priority int
}

// Dispatcher delivers posted events to services. Each dispatch runs to
// completion before the next event is taken; events posted while
// dispatching are queued for a later step.
type Dispatcher struct {
	mu       sync.Mutex
	services map[ServiceID]*service
	batch    []queued
	seq      uint64
	capacity int
	wake     chan struct{}

	timers *Timers
	log    zerolog.Logger
}

// Option applies configuration to a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize bounds the number of pending events (default 64).
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.capacity = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		services: make(map[ServiceID]*service),
		capacity: 64,
		wake:     make(chan struct{}, 1),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.batch = make([]queued, 0, d.capacity)
	d.timers = newTimers(d.Post)
	return d
}

// Register adds a service. Higher priority services are served first when
// several events are pending.
func (d *Dispatcher) Register(id ServiceID, name string, priority int, svc Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.services[id]; ok {
		return fmt.Errorf("%w: %d (%s)", ErrDuplicate, id, name)
	}
	d.services[id] = &service{name: name, priority: priority, svc: svc}
	return nil
}

// Timers returns the timer service whose expiries are posted here.
func (d *Dispatcher) Timers() *Timers {
	return d.timers
}

// Post queues evt for service id. Safe from any goroutine.
func (d *Dispatcher) Post(id ServiceID, evt racekart.Event) error {
	d.mu.Lock()
	s, ok := d.services[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownService, id)
	}
	if len(d.batch) >= d.capacity {
		d.mu.Unlock()
		d.log.Warn().Stringer("event", evt).Str("service", s.name).Msg("event dropped, queue full")
		return ErrQueueFull
	}
	d.batch = append(d.batch, queued{evt: evt, to: id, seq: d.seq, priority: s.priority})
	d.seq++
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Poster returns a function posting to id, for producers that should not
// know about the dispatcher.
func (d *Dispatcher) Poster(id ServiceID) func(racekart.Event) {
	return func(evt racekart.Event) {
		if err := d.Post(id, evt); err != nil {
			d.log.Error().Err(err).Stringer("event", evt).Msg("post failed")
		}
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batch)
}

// Step dispatches every event queued at the time of the call and returns
// how many were delivered.
func (d *Dispatcher) Step() int {
	events := d.collect()
	sortEvents(events)

	n := 0
	for _, q := range events {
		if d.deliver(q) {
			n++
		}
	}
	return n
}

// Drain steps until the queue is empty or maxSteps is reached.
func (d *Dispatcher) Drain(maxSteps int) int {
	total := 0
	for i := 0; i < maxSteps && d.Pending() > 0; i++ {
		total += d.Step()
	}
	return total
}

// Run dispatches events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
			d.Step()
		}
	}
}

// collect atomically retrieves and clears the event batch.
func (d *Dispatcher) collect() []queued {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.batch
	d.batch = make([]queued, 0, d.capacity)
	return events
}

func (d *Dispatcher) deliver(q queued) bool {
	d.mu.Lock()
	s, ok := d.services[q.to]
	d.mu.Unlock()
	if !ok {
		return false
	}

	if q.evt.Kind == racekart.Timeout && !d.timers.Current(TimerID(q.evt.Param), q.evt.Tag) {
		d.log.Debug().Stringer("event", q.evt).Str("service", s.name).Msg("stale timeout dropped")
		return false
	}

	s.svc.Run(q.evt)
	return true
}

// sortEvents orders events deterministically: higher priority first, then
// FIFO by sequence number.
func sortEvents(events []queued) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].priority != events[j].priority {
			return events[i].priority > events[j].priority
		}
		return events[i].seq < events[j].seq
	})
}
