package dispatch

import (
	"slices"
	"sync"

	"github.com/comalice/racekart"
)

// Well-known services. The drive service outranks Master so motor stops are
// handled before the state machines react.
const (
	MasterService ServiceID = iota + 1
	DriveService
)

// TimerID names a one-shot timer.
type TimerID uint8

const (
	DriveMotorTimer TimerID = iota + 1
	BeaconTimer
	DisplayTimer
)

type timer struct {
	deadline uint64
	gen      uint32
	owner    ServiceID
	armed    bool
}

// Timers is a millisecond one-shot timer service. Time only moves when Tick
// is called, normally once per millisecond by a realtime.Runtime.
//
// Every Arm and Stop bumps the timer's generation. Expiry posts
// Timeout{Param: id, Tag: gen} to the owner; the dispatcher drops a timeout
// whose generation is no longer current, so re-arming or stopping a timer
// reliably cancels an expiry that was already in flight.
type Timers struct {
	mu     sync.Mutex
	now    uint64
	timers map[TimerID]*timer
	post   func(ServiceID, racekart.Event) error
}

func newTimers(post func(ServiceID, racekart.Event) error) *Timers {
	return &Timers{
		timers: make(map[TimerID]*timer),
		post:   post,
	}
}

// Arm starts (or restarts) id to expire ms milliseconds from now and returns
// the new generation.
func (t *Timers) Arm(id TimerID, owner ServiceID, ms uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm := t.get(id)
	tm.gen++
	tm.owner = owner
	tm.deadline = t.now + uint64(ms)
	tm.armed = true
	return tm.gen
}

// Stop cancels id. A pending expiry already queued is invalidated too.
func (t *Timers) Stop(id TimerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm := t.get(id)
	tm.gen++
	tm.armed = false
}

// Running reports whether id is armed and has not yet expired.
func (t *Timers) Running(id TimerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[id]
	return ok && tm.armed
}

// Current reports whether gen is the latest generation of id.
func (t *Timers) Current(id TimerID, gen uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[id]
	return ok && tm.gen == gen
}

// Now returns the service time in milliseconds.
func (t *Timers) Now() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Tick advances time by one millisecond and fires expired timers.
// The argument makes Tick usable as a realtime.TickFunc.
func (t *Timers) Tick(uint64) {
	t.mu.Lock()
	t.now++
	var fired []racekart.Event
	var owners []ServiceID
	ids := make([]TimerID, 0, len(t.timers))
	for id := range t.timers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		tm := t.timers[id]
		if tm.armed && t.now >= tm.deadline {
			tm.armed = false
			fired = append(fired, racekart.Event{Kind: racekart.Timeout, Param: uint8(id), Tag: tm.gen})
			owners = append(owners, tm.owner)
		}
	}
	t.mu.Unlock()

	// Post outside the lock: post may block on the dispatcher's mutex.
	for i, evt := range fired {
		_ = t.post(owners[i], evt)
	}
}

// Advance runs ms ticks.
func (t *Timers) Advance(ms uint32) {
	for i := uint32(0); i < ms; i++ {
		t.Tick(0)
	}
}

func (t *Timers) get(id TimerID) *timer {
	tm, ok := t.timers[id]
	if !ok {
		tm = &timer{}
		t.timers[id] = tm
	}
	return tm
}
