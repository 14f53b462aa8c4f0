// Package xmr runs individuals-and-moving-range process control charts over
// a tabular measurement store.  The first eight measurements set the
// baseline; every later row is evaluated in order against the control limits
// in force, re-baselining when a detection rule fires and writing the
// derived columns back to the store.
package xmr

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/processchart/xmr/pkg/chart"
	"github.com/processchart/xmr/pkg/eventbus"
	"github.com/processchart/xmr/pkg/table"
)

// Runner drives a full chart pass over a measurement store.
type Runner struct {
	Config Config

	store    table.Store
	bus      *eventbus.EventBus
	notifier Notifier
	errors   ErrorReporter
	log      *slog.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Series   string
	Rows     int
	Baseline chart.Epoch
	Final    chart.Epoch
	Rule2    int
	Rule3    int
	Signals  int
	Triggers []Trigger
	Duration time.Duration
}

// Trigger records a rule firing at a row.
type Trigger struct {
	Row   int    `json:"row"`
	Label string `json:"label"`
}

// New prepares a runner over the given measurement store.
func New(store table.Store, options ...ConfigOption) (*Runner, error) {
	cfg, errs := newConfig(options...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return newRunner(store, cfg), nil
}

func newRunner(store table.Store, cfg Config) *Runner {
	r := &Runner{
		Config:   cfg,
		store:    store,
		bus:      eventbus.New(),
		notifier: newNotifier(cfg),
		errors:   newErrorReporter(cfg),
		log:      slog.Default().With("run", cfg.ID, "series", cfg.Series.String()),
	}
	if _, ok := r.notifier.(noopNotifier); !ok {
		events, done := r.bus.Subscribe()
		go notifyLoop(events, done, r.notifier, cfg, r.log)
	}
	return r
}

/// Run performs the whole pass: baseline over rows 2-9, then sequential rule
// evaluation of every further populated row.  Errors abort the run; a row
// that cannot be computed is never written back partially.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: r.Config.ID, Series: r.Config.Series.String()}

	r.log.Info("chart run starting", "store", r.Config.Store)
	r.publish(eventbus.Event{Type: eventbus.RunStarted}, eventbus.TopicRun)

	err := r.run(ctx, &summary)
	summary.Duration = time.Since(start)
	switch {
	case err != nil:
		r.log.Error("chart run failed", "error", err)
		r.errors.ReportError(err)
		r.publish(eventbus.Event{Type: eventbus.RunFailed, Row: summary.Rows, Err: err.Error()}, eventbus.TopicRun)
		return summary, err
	default:
		r.log.Info("chart run complete", "rows", summary.Rows, "rule2", summary.Rule2, "rule3", summary.Rule3, "signals", summary.Signals)
		r.publish(eventbus.Event{Type: eventbus.RunCompleted, Row: summary.Rows}, eventbus.TopicRun)
		return summary, nil
	}
}

// Wait flushes the event bus and blocks until subscribers, including the
// webhook notifier, have finished.  Call it after Run, with a context
// timeout to bound how long delivery may take.
func (r *Runner) Wait(ctx context.Context) error {
	return r.bus.Shutdown(ctx)
}

func (r *Runner) run(ctx context.Context, summary *Summary) error {
	last, err := r.store.LastRow(ctx)
	if err != nil {
		return err
	}
	if last < chart.BaselineEndRow {
		found := last - table.FirstDataRow + 1
		if found < 0 {
			found = 0
		}
		return chart.InsufficientDataError{Required: chart.BaselineLen, Found: found}
	}

	values, err := r.baselineValues(ctx)
	if err != nil {
		return err
	}

	ch, err := chart.New()
	if err != nil {
		return err
	}
	epoch, ranges, err := ch.Baseline(values)
	if err != nil {
		return err
	}
	if err := r.writeBaseline(ctx, epoch, ranges); err != nil {
		return err
	}
	summary.Baseline = epoch
	summary.Final = epoch
	summary.Rows = chart.BaselineLen

	if last > chart.BaselineEndRow {
		cells, err := r.store.ReadColumn(ctx, table.Measurement, chart.BaselineEndRow+1, last)
		if err != nil {
			return err
		}
		for i, cell := range cells {
			row := chart.BaselineEndRow + 1 + i
			value, ok := cell.Float()
			if !ok {
				return chart.MalformedMeasurementError{Row: row, Raw: cell.String()}
			}
			step, err := ch.Observe(value)
			if err != nil {
				return err
			}
			if err := r.writeStep(ctx, step); err != nil {
				return err
			}
			r.record(summary, step)
		}
	}

	summary.Final = ch.Epoch()
	return ch.Complete()
}

// baselineValues reads rows 2-9 of the measurement column.  Empty cells mean
// there is not enough data to baseline; non-numeric cells are malformed.
func (r *Runner) baselineValues(ctx context.Context) ([]float64, error) {
	cells, err := r.store.ReadColumn(ctx, table.Measurement, chart.BaselineStartRow, chart.BaselineEndRow)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(cells))
	found := 0
	for i, cell := range cells {
		if cell.IsEmpty() {
			continue
		}
		found++
		v, ok := cell.Float()
		if !ok {
			return nil, chart.MalformedMeasurementError{Row: chart.BaselineStartRow + i, Raw: cell.String()}
		}
		values = append(values, v)
	}
	if found < chart.BaselineLen {
		return nil, chart.InsufficientDataError{Required: chart.BaselineLen, Found: found}
	}
	return values, nil
}

func (r *Runner) writeBaseline(ctx context.Context, epoch chart.Epoch, ranges []float64) error {
	if err := r.store.WriteRange(ctx, chart.BaselineStartRow, chart.BaselineEndRow, rangeWrite(epoch)); err != nil {
		return err
	}
	// the first moving range lands on the second baseline row
	for i, mr := range ranges {
		row := chart.BaselineStartRow + 1 + i
		if err := r.store.WriteCell(ctx, row, table.MovingRange, table.Number(mr)); err != nil {
			return err
		}
	}
	return nil
}

// writeStep writes one evaluated row back: the epoch columns over the
// rewrite range (a single row unless a rule re-baselined), the moving range,
// and the trigger marker and signal flag only where they fired.
func (r *Runner) writeStep(ctx context.Context, step chart.Step) error {
	if err := r.store.WriteRange(ctx, step.RewriteStart, step.Row, rangeWrite(step.Epoch)); err != nil {
		return err
	}
	if err := r.store.WriteCell(ctx, step.Row, table.MovingRange, table.Number(step.MR)); err != nil {
		return err
	}
	if step.Trigger != "" {
		if err := r.store.WriteCell(ctx, step.Row, table.Trigger, table.Text(step.Trigger)); err != nil {
			return err
		}
	}
	if step.Signal {
		if err := r.store.WriteCell(ctx, step.Row, table.Signal, table.Flag(true)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) record(summary *Summary, step chart.Step) {
	summary.Rows++
	r.log.Debug("row evaluated", "row", step.Row, "label", step.Epoch.Label, "signal", step.Signal)
	r.publish(eventbus.Event{
		Type:   eventbus.RowEvaluated,
		Row:    step.Row,
		Value:  step.Value,
		Label:  step.Epoch.Label,
		Signal: step.Signal,
	}, eventbus.TopicRows)

	if step.Trigger != "" {
		summary.Triggers = append(summary.Triggers, Trigger{Row: step.Row, Label: step.Trigger})
		switch step.Trigger {
		case chart.LabelRule2:
			summary.Rule2++
		case chart.LabelRule3:
			summary.Rule3++
		}
		r.log.Info("rule triggered", "row", step.Row, "rule", step.Trigger)
		r.publish(eventbus.Event{Type: eventbus.RuleTriggered, Row: step.Row, Label: step.Trigger}, eventbus.TopicTriggers)
	}
	if step.Signal {
		r.log.Info("signal raised", "row", step.Row, "value", step.Value)
		r.publish(eventbus.Event{Type: eventbus.SignalRaised, Row: step.Row, Value: step.Value, Signal: true}, eventbus.TopicSignals)
	}
}

func (r *Runner) publish(evt eventbus.Event, topic eventbus.Topic) {
	evt.RunID = r.Config.ID
	evt.Series = r.Config.Series.String()
	evt.At = time.Now()
	r.bus.Dispatch(evt, topic)
}

func rangeWrite(e chart.Epoch) table.RangeWrite {
	return table.RangeWrite{
		DPA:   e.DPA,
		MRA:   e.MRA,
		LCL:   e.LCL,
		DLA:   e.DLA,
		DUA:   e.DUA,
		UCL:   e.UCL,
		MRUCL: e.MRUCL,
		Label: e.Label,
	}
}
