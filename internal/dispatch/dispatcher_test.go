package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/comalice/racekart"
)

type recorder struct {
	events []racekart.Event
}

func (r *recorder) Run(evt racekart.Event) { r.events = append(r.events, evt) }

func TestPostAndStepOrdering(t *testing.T) {
	t.Parallel()

	d := New()
	low, high := &recorder{}, &recorder{}
	var order []string
	if err := d.Register(1, "low", 1, ServiceFunc(func(e racekart.Event) { low.Run(e); order = append(order, "low:"+e.Kind.String()) })); err != nil {
		t.Fatal(err)
	}
	if err := d.Register(2, "high", 5, ServiceFunc(func(e racekart.Event) { high.Run(e); order = append(order, "high:"+e.Kind.String()) })); err != nil {
		t.Fatal(err)
	}

	_ = d.Post(1, racekart.NewEvent(racekart.RaceStarted))
	_ = d.Post(2, racekart.NewEvent(racekart.BumpDetected))
	_ = d.Post(1, racekart.NewEvent(racekart.RaceCaution))

	if n := d.Step(); n != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", n)
	}
	want := []string{"high:BumpDetected", "low:RaceStarted", "low:RaceCaution"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestPostedDuringDispatchRunsNextStep(t *testing.T) {
	t.Parallel()

	d := New()
	var seen []racekart.Kind
	_ = d.Register(1, "svc", 0, ServiceFunc(func(e racekart.Event) {
		seen = append(seen, e.Kind)
		if e.Kind == racekart.RaceStarted {
			_ = d.Post(1, racekart.NewEvent(racekart.DRSUpdated))
		}
	}))

	_ = d.Post(1, racekart.NewEvent(racekart.RaceStarted))
	if n := d.Step(); n != 1 {
		t.Fatalf("Expected 1 delivery in first step, got %d", n)
	}
	if d.Pending() != 1 {
		t.Fatalf("Expected follow-up event queued, got %d pending", d.Pending())
	}
	d.Drain(10)
	if len(seen) != 2 || seen[1] != racekart.DRSUpdated {
		t.Errorf("Unexpected delivery sequence %v", seen)
	}
}

func TestPostErrors(t *testing.T) {
	t.Parallel()

	d := New(WithQueueSize(2))
	if err := d.Post(9, racekart.None); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Expected ErrUnknownService, got %v", err)
	}
	_ = d.Register(1, "svc", 0, &recorder{})
	if err := d.Register(1, "again", 0, &recorder{}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	_ = d.Post(1, racekart.NewEvent(racekart.RaceStarted))
	_ = d.Post(1, racekart.NewEvent(racekart.RaceStarted))
	if err := d.Post(1, racekart.NewEvent(racekart.RaceStarted)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestTimerExpiryAndRestart(t *testing.T) {
	t.Parallel()

	d := New()
	rec := &recorder{}
	_ = d.Register(1, "svc", 0, rec)
	tm := d.Timers()

	tm.Arm(DriveMotorTimer, 1, 10)
	tm.Advance(5)
	// Re-arming restarts rather than adds.
	gen := tm.Arm(DriveMotorTimer, 1, 10)
	tm.Advance(9)
	d.Drain(5)
	if len(rec.events) != 0 {
		t.Fatalf("Timer fired early: %v", rec.events)
	}
	tm.Advance(1)
	d.Drain(5)
	if len(rec.events) != 1 {
		t.Fatalf("Expected one timeout, got %v", rec.events)
	}
	got := rec.events[0]
	if got.Kind != racekart.Timeout || TimerID(got.Param) != DriveMotorTimer || got.Tag != gen {
		t.Errorf("Unexpected timeout event %v", got)
	}
	if tm.Running(DriveMotorTimer) {
		t.Error("Timer still running after expiry")
	}
}

func TestStaleTimeoutDropped(t *testing.T) {
	t.Parallel()

	d := New()
	rec := &recorder{}
	_ = d.Register(1, "svc", 0, rec)
	tm := d.Timers()

	tm.Arm(DriveMotorTimer, 1, 1)
	tm.Advance(1) // expiry queued
	tm.Stop(DriveMotorTimer)
	d.Drain(5)
	if len(rec.events) != 0 {
		t.Errorf("Stale timeout delivered: %v", rec.events)
	}

	tm.Arm(BeaconTimer, 1, 1)
	tm.Advance(1)
	tm.Arm(BeaconTimer, 1, 50) // re-armed before delivery
	d.Drain(5)
	if len(rec.events) != 0 {
		t.Errorf("Superseded timeout delivered: %v", rec.events)
	}
}

func TestRunLoop(t *testing.T) {
	t.Parallel()

	d := New()
	got := make(chan racekart.Event, 1)
	_ = d.Register(1, "svc", 0, ServiceFunc(func(e racekart.Event) { got <- e }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	_ = d.Post(1, racekart.NewEvent(racekart.RaceFinished))
	select {
	case e := <-got:
		if e.Kind != racekart.RaceFinished {
			t.Errorf("Expected RaceFinished, got %v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Event not dispatched")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
