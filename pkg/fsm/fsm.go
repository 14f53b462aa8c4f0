// Package fsm implements a small finite state machine used to guard
// lifecycle transitions in sequential evaluators.
package fsm

import (
	"fmt"
)

// State represents a possible transition state for the FSM.
type State string

// Machine is a basic finite state machine.  The zero value is not usable;
// create one with New.
type Machine struct {
	current   State
	initial   State
	allowable map[State][]State
	stoppable stoppable
}

// New returns a machine in the initial state with the configured options.
// A machine created without options allows no transitions.
func New(initial State, opts ...Option) (*Machine, error) {
	m := &Machine{
		current:   initial,
		initial:   initial,
		allowable: map[State][]State{},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// State returns the current state of the machine.
func (m *Machine) State() State {
	return m.current
}

// Allowable checks whether a transition between two states is allowable.
func (m *Machine) Allowable(from, to State) bool {
	return contains(to, m.allowable[from])
}

// Transition changes the current state of the machine if the transition is
// allowable.
func (m *Machine) Transition(to State) error {
	return m.transition(to, m.stoppable)
}

// Reset returns the machine to its initial state and clears any stop
// condition.
func (m *Machine) Reset() {
	m.current = m.initial
	m.stoppable.stopped = false
}

func (m *Machine) transition(to State, guards ...guard) error {
	for _, g := range guards {
		if err := g.ok(); err != nil {
			m.stoppable.stopped = true
			return err
		}
	}

	switch m.Allowable(m.current, to) {
	case true:
		m.current = to
		return nil
	default:
		m.stoppable.stopped = true
		return TransitionNotAllowed{Msg: fmt.Sprintf("cannot transition from state %s to %s", m.current, to)}
	}
}

func contains(s State, all []State) bool {
	for _, a := range all {
		if s == a {
			return true
		}
	}
	return false
}
