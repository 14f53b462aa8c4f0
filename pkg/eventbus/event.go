package eventbus

import "time"

// EventType identifies what happened during a chart run.  Subscribers on the
// default topic receive every event and can filter on the type rather than
// subscribing to multiple topics.
type EventType string

const (
	// RunStarted is published once, before the baseline is computed.
	RunStarted EventType = "run_started"
	// RowEvaluated is published for every measurement row processed after
	// the baseline.
	RowEvaluated EventType = "row_evaluated"
	// RuleTriggered is published when a detection rule re-baselines the
	// chart; the event Label carries the rule name.
	RuleTriggered EventType = "rule_triggered"
	// SignalRaised is published when a row is flagged as an outlier.
	SignalRaised EventType = "signal_raised"
	// RunCompleted is published after the final row has been written back;
	// the event Row field carries the total rows processed.
	RunCompleted EventType = "run_completed"
	// RunFailed is published when the run stops early; the event Err field
	// carries the reason and Row the rows processed before the failure.
	RunFailed EventType = "run_failed"
)

// Event is passed on the event bus to every subscriber on the channel.  Row,
// Value, Label and Signal mirror the chart row the event describes and are
// zero for lifecycle events.
type Event struct {
	Type   EventType
	RunID  string
	Series string
	Row    int
	Value  float64
	Label  string
	Signal bool
	Err    string
	At     time.Time
}
