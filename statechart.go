package racekart

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type StateID int

// NoState as a transition target marks an internal transition: the action
// runs, no exit or entry happens.
const NoState StateID = -1

type EntryAction func(history bool)
type ExitAction func()

// DuringAction runs on every non-entry/exit event while the state is current,
// before the state's own transitions are considered. It usually forwards the
// event to a child machine and returns what the child left of it: the same
// event, a remapped one, or None when consumed.
type DuringAction func(evt Event) Event

type Guard func(evt Event) bool
type Action func(evt Event)

// ---

type State struct {
	ID          StateID
	Name        string
	Transitions []*Transition
	EntryAction EntryAction
	ExitAction  ExitAction
	During      DuringAction
	Initial     bool
}

type Transition struct {
	On      Kind
	Target  StateID // NoState --> internal transition
	History bool    // enter Target with history
	Guard   Guard   // nil --> always taken
	Action  Action  // nil --> do nothing
}

// Machine drives one flat level of the hierarchy. Nesting is expressed by a
// state's During/Entry/Exit actions owning a child Machine.
type Machine struct {
	name    string
	states  map[StateID]*State
	order   []*State
	initial *State
	current *State
	log     zerolog.Logger
}

//
// Public API
//

func (s *State) OnEntry(action EntryAction) {
	s.EntryAction = action
}

func (s *State) OnExit(action ExitAction) {
	s.ExitAction = action
}

func (s *State) OnDuring(action DuringAction) {
	s.During = action
}

// On appends a transition and returns it so callers can set History.
func (s *State) On(k Kind, target StateID, guard Guard, action Action) *Transition {
	t := &Transition{
		On:     k,
		Target: target,
		Guard:  guard,
		Action: action,
	}
	s.Transitions = append(s.Transitions, t)
	return t
}

// Handle registers an internal transition.
func (s *State) Handle(k Kind, guard Guard, action Action) *Transition {
	return s.On(k, NoState, guard, action)
}

func NewMachine(name string, states ...*State) (*Machine, error) {
	if len(states) == 0 {
		return nil, errors.New("no states provided")
	}
	m := &Machine{
		name:   name,
		states: map[StateID]*State{},
		order:  states,
		log:    zerolog.Nop(),
	}

	// Build LUT and find initial state.
	var initial *State
	for _, s := range states {
		if s == nil {
			return nil, errors.New("nil state")
		}
		if _, exists := m.states[s.ID]; exists {
			return nil, fmt.Errorf("%s: duplicate state ID %d", name, s.ID)
		}
		m.states[s.ID] = s
		if s.Initial {
			if initial != nil {
				return nil, fmt.Errorf("%s: more than one initial state", name)
			}
			initial = s
		}
	}
	if initial == nil {
		initial = states[0] // First state is assigned as initial.
	}
	m.initial = initial

	for _, s := range states {
		for _, t := range s.Transitions {
			if t == nil || t.Target == NoState {
				continue
			}
			if _, ok := m.states[t.Target]; !ok {
				return nil, fmt.Errorf("%s: state %s: unknown transition target %d", name, s.Name, t.Target)
			}
		}
	}

	return m, nil
}

// MustMachine is NewMachine for fixed topologies built at init time.
func MustMachine(name string, states ...*State) *Machine {
	m, err := NewMachine(name, states...)
	if err != nil {
		panic(err)
	}
	return m
}

// SetLogger attaches a logger; entries are tagged with the machine name.
func (m *Machine) SetLogger(l zerolog.Logger) {
	m.log = l.With().Str("machine", m.name).Logger()
}

func (m *Machine) Name() string { return m.name }

// Start enters the machine. A fresh start resets to the initial state; a
// history start re-enters whichever state was current when the machine was
// last left.
func (m *Machine) Start(history bool) {
	if !history || m.current == nil {
		m.current = m.initial
	}
	m.enter(m.current, history)
}

// Stop runs the current state's exit action. The current state is kept so a
// later history start can resume it.
func (m *Machine) Stop() {
	if m.current != nil {
		m.exit(m.current)
	}
}

// Reset rewinds to the initial state without running any action.
func (m *Machine) Reset() {
	m.current = m.initial
}

// Run delivers one event. The current state's During action sees it first;
// whatever survives is matched against the state's transitions in
// declaration order. Run returns None when the event was consumed here or
// below, otherwise the (possibly remapped) event for the parent to consider.
func (m *Machine) Run(evt Event) Event {
	if m.current == nil {
		return evt
	}
	s := m.current
	if s.During != nil {
		evt = s.During(evt)
		if evt.IsNone() {
			return None
		}
	}

	t := m.pickTransition(s, evt)
	if t == nil {
		return evt
	}
	m.doTransition(t, evt)
	return None
}

func (m *Machine) Current() StateID {
	if m.current == nil {
		return NoState
	}
	return m.current.ID
}

func (m *Machine) CurrentName() string {
	if m.current == nil {
		return ""
	}
	return m.current.Name
}

// States returns the states in declaration order.
func (m *Machine) States() []*State {
	return m.order
}

//
// Helper Functions (internal API)
//

func (m *Machine) enter(s *State, history bool) {
	m.log.Debug().Str("state", s.Name).Bool("history", history).Msg("enter")
	if s.EntryAction != nil {
		s.EntryAction(history)
	}
}

func (m *Machine) exit(s *State) {
	if s.ExitAction != nil {
		s.ExitAction()
	}
}

// pickTransition grabs the _first_ matching transition whose guard passes.
func (m *Machine) pickTransition(s *State, evt Event) *Transition {
	for _, t := range s.Transitions {
		if t == nil || t.On != evt.Kind {
			continue
		}
		if t.Guard != nil && !t.Guard(evt) {
			continue
		}
		return t
	}
	return nil
}

// doTransition runs exit, action, entry in that order. There is no recursion:
// the next state is entered only after the old one has fully exited.
func (m *Machine) doTransition(t *Transition, evt Event) {
	if t.Target == NoState {
		if t.Action != nil {
			t.Action(evt)
		}
		return
	}

	from := m.current
	to := m.states[t.Target]
	m.exit(from)
	if t.Action != nil {
		t.Action(evt)
	}
	m.current = to
	m.log.Debug().Str("from", from.Name).Str("to", to.Name).Stringer("event", evt.Kind).Msg("transition")
	m.enter(to, t.History)
}
