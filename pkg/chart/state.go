package chart

import "github.com/processchart/xmr/pkg/fsm"

const (
	// These represent the lifecycle states of one evaluation pass: a chart
	// starts pending, becomes baselined once the first eight observations
	// establish a regime, then evaluates rows sequentially until the pass
	// completes or fails.
	Pending    = fsm.State("pending")
	Baselined  = fsm.State("baselined")
	Evaluating = fsm.State("evaluating")
	Completed  = fsm.State("completed")
	Failed     = fsm.State("failed")
)

func newMachine(initial fsm.State) (*fsm.Machine, error) {
	return fsm.New(initial, fsm.WithTransitions(
		fsm.T(Pending, Baselined, Failed),
		fsm.T(Baselined, Evaluating, Completed, Failed),
		fsm.T(Evaluating, Completed, Failed),
	))
}
