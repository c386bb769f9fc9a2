package motor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/comalice/racekart/internal/config"
)

// recordingActuator logs every electrical command.
type recordingActuator struct {
	mu  sync.Mutex
	log []string
}

func (a *recordingActuator) SetDuty(w Wheel, duty uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = append(a.log, fmt.Sprintf("%s duty %d", w, duty))
}

func (a *recordingActuator) SetDirection(w Wheel, dir Direction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = append(a.log, fmt.Sprintf("%s dir %s", w, dir))
}

func (a *recordingActuator) take() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.log
	a.log = nil
	return out
}

func TestControllerAppliesOnlyChanges(t *testing.T) {
	t.Parallel()

	act := &recordingActuator{}
	c := NewController(config.Default(), act)
	c.SetDuty(Left, 40, Forward)
	c.SetDuty(Right, 40, Backward)
	c.Tick(0)
	c.Tick(1)
	c.SetDuty(Right, 60, Backward)
	c.Tick(2)

	want := []string{
		"left dir forward", "left duty 40",
		"right dir backward", "right duty 40",
		"right duty 60",
	}
	if diff := cmp.Diff(want, act.take()); diff != "" {
		t.Errorf("actuator log mismatch (-want +got):\n%s", diff)
	}

	c.Stop()
	if diff := cmp.Diff([]string{"left duty 0", "right duty 0"}, act.take()); diff != "" {
		t.Errorf("stop mismatch (-want +got):\n%s", diff)
	}
}

func TestModeSwitchResetsIntegral(t *testing.T) {
	t.Parallel()

	c := NewController(config.Default(), &recordingActuator{})
	c.SetGains(config.Gains{Kp: 0.01, Ki: 0.01})
	c.SetRPM(Left, 100, Forward)
	for i := 0; i < 3; i++ {
		c.Tick(uint64(i))
	}
	if c.Integral(Left) != 300 {
		t.Fatalf("Expected integral 300, got %g", c.Integral(Left))
	}

	// A new closed-loop setpoint keeps the accumulator.
	c.SetRPM(Left, 120, Forward)
	if c.Integral(Left) != 300 {
		t.Errorf("Expected integral kept within closed loop, got %g", c.Integral(Left))
	}

	c.SetDuty(Left, 50, Forward)
	if c.Integral(Left) != 0 {
		t.Errorf("Expected integral reset entering open loop, got %g", c.Integral(Left))
	}
	if m, v, _ := c.Target(Left); m != OpenLoop || v != 50 {
		t.Errorf("Expected open loop at 50, got %s at %g", m, v)
	}
	c.Tick(3)
	if c.Duty(Left) != 50 {
		t.Errorf("Expected open-loop duty 50, got %d", c.Duty(Left))
	}

	c.SetRPM(Left, 100, Forward)
	if c.Integral(Left) != 0 {
		t.Errorf("Expected integral reset entering closed loop, got %g", c.Integral(Left))
	}
}

func TestSetGainsKeepsIntegral(t *testing.T) {
	t.Parallel()

	c := NewController(config.Default(), &recordingActuator{})
	c.SetGains(config.Gains{Kp: 0.01, Ki: 0.01})
	c.SetRPM(Right, 100, Forward)
	c.Tick(0)
	c.SetGains(config.Gains{Kp: 0.02, Ki: 0.01})
	if c.Integral(Right) != 100 {
		t.Errorf("Expected gain swap to keep integral, got %g", c.Integral(Right))
	}
	c.ClearSumError()
	if c.Integral(Right) != 0 {
		t.Errorf("Expected ClearSumError to reset, got %g", c.Integral(Right))
	}
}

func TestZeroTargetLeavesAccumulator(t *testing.T) {
	t.Parallel()

	c := NewController(config.Default(), &recordingActuator{})
	c.SetGains(config.Gains{Kp: 0.01, Ki: 0.01})
	c.SetRPM(Left, 100, Forward)
	c.Tick(0)
	c.Stop()
	c.Tick(1)
	if c.Duty(Left) != 0 {
		t.Errorf("Expected 0 duty when stopped, got %d", c.Duty(Left))
	}
	if c.Integral(Left) != 100 {
		t.Errorf("Expected integral untouched while stopped, got %g", c.Integral(Left))
	}
}

func TestTickTargetArrival(t *testing.T) {
	t.Parallel()

	var gens []uint32
	c := NewController(config.Default(), &recordingActuator{}, WithArrival(func(gen uint32) {
		gens = append(gens, gen)
	}))
	gen := c.ArmTicks(3)

	stamp := uint32(0)
	edge := func(w Wheel) {
		stamp += 10_000
		c.Capture(w, stamp)
	}
	edge(Left)
	edge(Right)
	edge(Left)
	edge(Right)
	edge(Left) // avg (3+2)/2 = 2
	if len(gens) != 0 {
		t.Fatalf("Arrived early: %v", gens)
	}
	edge(Right) // avg 3
	if len(gens) != 1 || gens[0] != gen {
		t.Fatalf("Expected one arrival with gen %d, got %v", gen, gens)
	}
	edge(Left)
	edge(Right)
	if len(gens) != 1 {
		t.Errorf("Arrival reported more than once: %v", gens)
	}
	if !c.TicksCurrent(gen) {
		t.Error("Expected arrived target to stay current")
	}
	c.CancelTicks()
	if c.TicksCurrent(gen) {
		t.Error("Expected cancel to invalidate the target")
	}
}

func TestArmTicksResetsCounts(t *testing.T) {
	t.Parallel()

	c := NewController(config.Default(), &recordingActuator{})
	c.Capture(Left, 1)
	c.Capture(Right, 2)
	c.ArmTicks(10)
	if c.Count(Left) != 0 || c.Count(Right) != 0 {
		t.Errorf("Expected counts reset, got %d/%d", c.Count(Left), c.Count(Right))
	}
	if n, armed := c.TargetTicks(); n != 10 || !armed {
		t.Errorf("Expected armed target 10, got %d armed=%v", n, armed)
	}
}

func TestStallFault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Motor.StallFaultMS = 5
	c := NewController(cfg, &recordingActuator{})
	c.SetGains(config.Gains{Kp: 1})
	c.SetRPM(Left, 500, Forward)

	for i := 0; i < 4; i++ {
		c.Tick(uint64(i))
	}
	if c.Stalled(Left) {
		t.Fatal("Stall reported before the fault window")
	}
	c.Tick(4)
	if !c.Stalled(Left) {
		t.Fatal("Expected stall after the fault window")
	}
	if c.Stalled(Right) {
		t.Error("Idle wheel reported stalled")
	}
	if c.Duty(Left) != 100 {
		t.Errorf("Expected saturated duty, got %d", c.Duty(Left))
	}

	c.Stop()
	c.Tick(5)
	if c.Stalled(Left) {
		t.Error("Expected stall cleared once stopped")
	}
}

func TestCaptureClockAdvancesPerTick(t *testing.T) {
	t.Parallel()

	c := NewController(config.Default(), &recordingActuator{})
	c.Tick(0)
	c.Tick(1)
	// 1 ms at 40 MHz.
	if c.Now() != 80_000 {
		t.Errorf("Expected capture clock 80000, got %d", c.Now())
	}
}
