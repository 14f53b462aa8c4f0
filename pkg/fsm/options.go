package fsm

// Option configures a machine at creation.
type Option func(m *Machine) error

// WithTransition adds a single edge to the transition graph.  To add
// multiple edges at once, use WithTransitions.
func WithTransition(t Transition) Option {
	return func(m *Machine) error {
		m.allowable[t.From] = append(m.allowable[t.From], t.To)
		return nil
	}
}

// WithTransitions adds multiple edges using the T(from, to...) shorthand,
// for example New(initial, WithTransitions(T(one, two, three), T(two, three))).
func WithTransitions(transitions ...[]Transition) Option {
	return func(m *Machine) error {
		for _, t := range flatten(transitions) {
			m.allowable[t.From] = append(m.allowable[t.From], t.To)
		}
		return nil
	}
}

// WithStoppable makes the machine stop after an unallowable transition.
// Further attempted transitions always error until Reset is called.
func WithStoppable() Option {
	return func(m *Machine) error {
		m.stoppable.stopOnError = true
		return nil
	}
}

type stoppable struct {
	stopOnError bool
	stopped     bool
}

func (s stoppable) ok() error {
	if s.stopOnError && s.stopped {
		return StopError{Msg: "state machine is in stopped state due to unallowable transition"}
	}
	return nil
}
