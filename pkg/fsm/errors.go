package fsm

// TransitionNotAllowed is an error caused by attempting a transition that is
// not on the machine's transition graph.
type TransitionNotAllowed struct {
	Msg string
}

func (e TransitionNotAllowed) Error() string {
	return e.Msg
}

// StopError is returned when a stoppable machine has stopped after an
// unallowable transition and a further transition is attempted.
type StopError struct {
	Msg string
}

func (e StopError) Error() string {
	return e.Msg
}
