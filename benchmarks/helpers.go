// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"

	"github.com/comalice/racekart"
)

// Tick is the event every generated machine reacts to.
const Tick = racekart.MotorTimeout

// GenFlatMachine creates a flat machine with n states cycling on Tick.
func GenFlatMachine(n int) *racekart.Machine {
	if n < 1 {
		n = 1
	}
	states := make([]*racekart.State, n)
	for i := range states {
		states[i] = &racekart.State{ID: racekart.StateID(i), Name: fmt.Sprintf("s%d", i)}
		states[i].On(Tick, racekart.StateID((i+1)%n), nil, nil)
	}
	m := racekart.MustMachine(fmt.Sprintf("flat_%d", n), states...)
	m.Start(false)
	return m
}

// GenDeepMachine nests depth two-state machines. Each level forwards Tick
// to the level below through its During action; only the bottom level
// transitions.
func GenDeepMachine(depth int) *racekart.Machine {
	if depth < 1 {
		depth = 1
	}
	var below *racekart.Machine
	var top *racekart.Machine
	for level := depth - 1; level >= 0; level-- {
		leaf1 := &racekart.State{ID: 0, Name: "leaf1"}
		leaf2 := &racekart.State{ID: 1, Name: "leaf2"}
		if below == nil {
			leaf1.On(Tick, 1, nil, nil)
			leaf2.On(Tick, 0, nil, nil)
		} else {
			child := below
			leaf1.OnEntry(func(history bool) { child.Start(history) })
			leaf1.OnExit(child.Stop)
			leaf1.OnDuring(child.Run)
		}
		top = racekart.MustMachine(fmt.Sprintf("c%d", level), leaf1, leaf2)
		below = top
	}
	top.Start(false)
	return top
}

// GenGuardedMachine creates one state with n guarded internal Tick
// transitions; only the last guard passes.
func GenGuardedMachine(n int) (*racekart.Machine, *int) {
	if n < 1 {
		n = 1
	}
	hits := new(int)
	s := &racekart.State{ID: 0, Name: "main"}
	for i := 0; i < n; i++ {
		last := i == n-1
		s.Handle(Tick, func(racekart.Event) bool { return last }, func(racekart.Event) { *hits++ })
	}
	m := racekart.MustMachine(fmt.Sprintf("guarded_%d", n), s)
	m.Start(false)
	return m, hits
}
