package fsm

// Transition represents an allowable transition from one state to another.
type Transition struct {
	From State
	To   State
}

// guard is a condition beyond the transition graph that can stop a
// transition, such as a prior stop.
type guard interface {
	ok() error
}

// T is a shorthand for declaring allowable transitions during machine
// creation: T(one, two, three) allows one->two and one->three.
func T(from State, tos ...State) []Transition {
	var transitions []Transition
	for _, to := range tos {
		transitions = append(transitions, Transition{
			From: from,
			To:   to,
		})
	}
	return transitions
}

func flatten(t [][]Transition) []Transition {
	var transitions []Transition
	for _, t1 := range t {
		transitions = append(transitions, t1...)
	}
	return transitions
}
