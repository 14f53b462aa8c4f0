// Package chart implements the individuals and moving range control chart:
// baseline establishment over the first eight observations followed by
// sequential rule evaluation with retroactive re-baselining.
//
// The evaluator is a fold over measurements.  It carries the governing epoch
// in memory from row to row and reports, for each row, the epoch and flags
// to store plus how far back the epoch must be stamped.  It performs no I/O;
// callers feed it measurements and apply the results to a store.
package chart

import (
	"fmt"
	"math"
	"strconv"

	"github.com/processchart/xmr/pkg/fsm"
	"github.com/processchart/xmr/pkg/window"
)

// Step is the outcome of one sequentially evaluated row.
type Step struct {
	Row     int
	Value   float64
	MR      float64
	Epoch   Epoch  // the regime governing the row after evaluation
	Signal  bool   // the outlier rule fired on this row
	Trigger string // LabelRule2 or LabelRule3 when a re-baseline fired here, else empty

	// RewriteStart is the first row of the contiguous range that must be
	// stamped with Epoch: the row itself when the regime is inherited, or
	// up to seven rows back after a re-baseline.
	RewriteStart int
}

// Chart is the sequential evaluator for one pass over a measurement series.
// Rows depend on the fully resolved result of the previous row, so a chart
// must be fed strictly in row order and never concurrently.
type Chart struct {
	machine *fsm.Machine
	epoch   Epoch
	prev    float64
	row     int
	values  *window.Window
	ranges  *window.Window
}

// New returns a chart in the pending state, ready to be baselined.
func New() (*Chart, error) {
	machine, err := newMachine(Pending)
	if err != nil {
		return nil, err
	}
	values, err := window.New(ShiftWindow)
	if err != nil {
		return nil, err
	}
	ranges, err := window.New(ShiftWindow)
	if err != nil {
		return nil, err
	}
	return &Chart{
		machine: machine,
		values:  values,
		ranges:  ranges,
	}, nil
}

// Baseline establishes the initial regime from the first eight measurements
// (rows 2 through 9 in sheet numbering).  It returns the epoch, which
// governs all eight rows, and the seven moving ranges computed inside the
// window in row order starting at the second baseline row.
func (c *Chart) Baseline(values []float64) (Epoch, []float64, error) {
	if c.machine.State() != Pending {
		return Epoch{}, nil, fsm.TransitionNotAllowed{Msg: fmt.Sprintf("cannot baseline in state %s", c.machine.State())}
	}
	switch {
	case len(values) < BaselineLen:
		c.fail()
		return Epoch{}, nil, InsufficientDataError{Required: BaselineLen, Found: len(values)}
	case len(values) > BaselineLen:
		c.fail()
		return Epoch{}, nil, fmt.Errorf("baseline window must hold exactly %d measurements, got %d", BaselineLen, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			c.fail()
			return Epoch{}, nil, MalformedMeasurementError{Row: BaselineStartRow + i, Raw: strconv.FormatFloat(v, 'f', -1, 64)}
		}
	}

	ranges := make([]float64, 0, BaselineLen-1)
	for i := 1; i < len(values); i++ {
		ranges = append(ranges, MR(values[i-1], values[i]))
	}
	epoch, err := NewEpoch(values, ranges, LabelBaseline)
	if err != nil {
		c.fail()
		return Epoch{}, nil, err
	}
	if err := c.machine.Transition(Baselined); err != nil {
		return Epoch{}, nil, err
	}

	for _, v := range values {
		c.values.Push(v)
	}
	for _, r := range ranges {
		c.ranges.Push(r)
	}
	c.epoch = epoch
	c.prev = values[len(values)-1]
	c.row = BaselineEndRow
	return epoch, ranges, nil
}

// Observe evaluates the measurement at the next sequential row.  The first
// call after Baseline evaluates the row following the baseline window; each
// call after that advances one row.
func (c *Chart) Observe(value float64) (Step, error) {
	switch c.machine.State() {
	case Baselined:
		if err := c.machine.Transition(Evaluating); err != nil {
			return Step{}, err
		}
	case Evaluating:
	default:
		return Step{}, fsm.TransitionNotAllowed{Msg: fmt.Sprintf("cannot observe in state %s", c.machine.State())}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		c.fail()
		return Step{}, MalformedMeasurementError{Row: c.row + 1, Raw: strconv.FormatFloat(value, 'f', -1, 64)}
	}

	c.row++
	mr := MR(c.prev, value)
	prev := c.epoch

	c.values.Push(value)
	c.ranges.Push(mr)
	c.prev = value

	step := Step{
		Row:          c.row,
		Value:        value,
		MR:           mr,
		Epoch:        prev,
		Signal:       signal(value, mr, prev),
		RewriteStart: c.row,
	}

	// The outlier signal never blocks a re-baseline; a run beats a trend.
	switch {
	case shifted(c.values.Values(), prev.DPA):
		epoch, err := NewEpoch(c.values.Values(), c.ranges.Values(), LabelRule2)
		if err != nil {
			c.fail()
			return Step{}, err
		}
		c.epoch = epoch
		step.Epoch = epoch
		step.Trigger = LabelRule2
		step.RewriteStart = c.row - (ShiftWindow - 1)
	case drifted(c.values.Last(TrendWindow), prev):
		epoch, err := NewEpoch(c.values.Last(TrendWindow), c.ranges.Last(TrendWindow), LabelRule3)
		if err != nil {
			c.fail()
			return Step{}, err
		}
		c.epoch = epoch
		step.Epoch = epoch
		step.Trigger = LabelRule3
		step.RewriteStart = c.row - (TrendWindow - 1)
	}
	return step, nil
}

// Epoch returns the currently governing regime.
func (c *Chart) Epoch() Epoch {
	return c.epoch
}

// Row returns the last evaluated row, or the final baseline row before any
// observation.
func (c *Chart) Row() int {
	return c.row
}

// State returns the lifecycle state of the chart.
func (c *Chart) State() fsm.State {
	return c.machine.State()
}

// Complete marks the pass finished after the last populated row.
func (c *Chart) Complete() error {
	return c.machine.Transition(Completed)
}

func (c *Chart) fail() {
	_ = c.machine.Transition(Failed)
}

// signal implements the outlier rule: the measurement breaches a control
// limit and its moving range breaches the moving-range limit at the same
// time.
func signal(value, mr float64, e Epoch) bool {
	return (value > e.UCL || value < e.LCL) && mr > e.MRUCL
}

// shifted reports a run: every measurement in the trailing window falls
// strictly on one side of the center line.
func shifted(values []float64, dpa float64) bool {
	if len(values) == 0 {
		return false
	}
	above, below := 0, 0
	for _, v := range values {
		switch {
		case v > dpa:
			above++
		case v < dpa:
			below++
		}
	}
	return above == len(values) || below == len(values)
}

// drifted reports a trend toward one control limit: at least three of the
// trailing measurements sit beyond the same warning boundary.
func drifted(values []float64, e Epoch) bool {
	above, below := 0, 0
	for _, v := range values {
		switch {
		case v > e.DUA:
			above++
		case v < e.DLA:
			below++
		}
	}
	return above >= 3 || below >= 3
}
