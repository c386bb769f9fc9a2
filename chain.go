package racekart

// Step is one maneuver in a chained-timeout sequence. Do issues a motion or
// actuator command that ends by arming the drive timer, so the next
// MotorTimeout advances the chain.
type Step struct {
	Name string
	Do   func()
}

// Chain is a fixed, ordered list of steps executed one per MotorTimeout.
// The first command of a sequence is issued by the owning state's entry
// action; the chain holds what follows it. A chain of n steps therefore
// completes on the (n+1)th timeout after entry.
type Chain struct {
	steps []Step
	next  int
}

func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Reset rewinds the chain. Owning states call it on every entry.
func (c *Chain) Reset() {
	c.next = 0
}

// Pending reports whether steps remain.
func (c *Chain) Pending() bool {
	return c.next < len(c.steps)
}

// Advance runs the next step. It is a no-op once the chain is finished.
func (c *Chain) Advance() {
	if !c.Pending() {
		return
	}
	s := c.steps[c.next]
	c.next++
	if s.Do != nil {
		s.Do()
	}
}

// Position is the index of the next step to run.
func (c *Chain) Position() int {
	return c.next
}

// Timeouts is the number of MotorTimeout deliveries from entry to completion.
func (c *Chain) Timeouts() int {
	return len(c.steps) + 1
}

// Names lists the step names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name
	}
	return names
}

// Bind registers the chain on s: while steps remain, each MotorTimeout runs
// the next one; the timeout after the last step is left for the transitions
// declared after this call.
func (c *Chain) Bind(s *State) *Transition {
	return s.Handle(MotorTimeout, func(Event) bool { return c.Pending() }, func(Event) { c.Advance() })
}
