package xmr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/processchart/xmr/pkg/chart"
	"github.com/processchart/xmr/pkg/eventbus"
	"github.com/processchart/xmr/pkg/table"
)

// the worked example used throughout: 8 baseline measurements for rows 2-9
var testBaseline = []float64{10, 12, 11, 13, 12, 14, 13, 15}

var testBaselineEpoch = chart.Epoch{
	DPA:   12.5,
	MRA:   1.57,
	LCL:   8.32,
	DLA:   10.41,
	DUA:   14.59,
	UCL:   16.68,
	MRUCL: 5.14,
	Label: chart.LabelBaseline,
}

// epoch after the shift rule fires at row 14 over measurements
// [13, 14, 13.5, 14.5, 13] appended to the baseline
var testRule2Epoch = chart.Epoch{
	DPA:   13.75,
	MRA:   1.38,
	LCL:   10.09,
	DLA:   11.92,
	DUA:   15.58,
	UCL:   17.41,
	MRUCL: 4.5,
	Label: chart.LabelRule2,
}

// epoch after the trend rule fires at row 12 over measurements
// [15, 13, 15] appended to the baseline
var testRule3Epoch = chart.Epoch{
	DPA:   14.5,
	MRA:   1.5,
	LCL:   10.51,
	DLA:   12.51,
	DUA:   16.49,
	UCL:   18.49,
	MRUCL: 4.91,
	Label: chart.LabelRule3,
}

func newTestRunner(t *testing.T, st table.Store, options ...ConfigOption) *Runner {
	t.Helper()
	r, err := New(st, options...)
	if err != nil {
		t.Fatalf("unexpected error building runner: %s", err)
	}
	r.log = discardLogger()
	return r
}

func cellNumber(t *testing.T, st table.Store, row int, col table.Column) float64 {
	t.Helper()
	cell, err := st.ReadCell(context.Background(), row, col)
	assert.NoError(t, err)
	v, ok := cell.Float()
	if !ok {
		t.Fatalf("expected numeric cell at %s%d, got kind %v", col, row, cell.Kind)
	}
	return v
}

func cellText(t *testing.T, st table.Store, row int, col table.Column) string {
	t.Helper()
	cell, err := st.ReadCell(context.Background(), row, col)
	assert.NoError(t, err)
	return cell.Text
}

func cellIsEmpty(t *testing.T, st table.Store, row int, col table.Column) bool {
	t.Helper()
	cell, err := st.ReadCell(context.Background(), row, col)
	assert.NoError(t, err)
	return cell.IsEmpty()
}

func cellFlag(t *testing.T, st table.Store, row int, col table.Column) bool {
	t.Helper()
	cell, err := st.ReadCell(context.Background(), row, col)
	assert.NoError(t, err)
	return cell.Kind == table.KindFlag && cell.Flag
}

func assertEpochRow(t *testing.T, st table.Store, row int, e chart.Epoch) {
	t.Helper()
	assert.Equal(t, e.DPA, cellNumber(t, st, row, table.DPA), "dpa at row %d", row)
	assert.Equal(t, e.MRA, cellNumber(t, st, row, table.MRA), "mra at row %d", row)
	assert.Equal(t, e.LCL, cellNumber(t, st, row, table.LCL), "lcl at row %d", row)
	assert.Equal(t, e.DLA, cellNumber(t, st, row, table.DLA), "dla at row %d", row)
	assert.Equal(t, e.DUA, cellNumber(t, st, row, table.DUA), "dua at row %d", row)
	assert.Equal(t, e.UCL, cellNumber(t, st, row, table.UCL), "ucl at row %d", row)
	assert.Equal(t, e.MRUCL, cellNumber(t, st, row, table.MRUCL), "mrucl at row %d", row)
	assert.Equal(t, e.Label, cellText(t, st, row, table.Label), "label at row %d", row)
}

func TestRunBaselinesAndInherits(t *testing.T) {
	st := table.NewMemoryFromValues(append(testBaseline, 12.9))
	r := newTestRunner(t, st, Store("memory"))

	summary, err := r.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 9, summary.Rows)
	assert.Equal(t, 0, summary.Rule2)
	assert.Equal(t, 0, summary.Rule3)
	assert.Equal(t, 0, summary.Signals)
	assert.Empty(t, summary.Triggers)
	assert.Equal(t, testBaselineEpoch, summary.Baseline)
	assert.Equal(t, testBaselineEpoch, summary.Final)

	// all baseline rows and the inherited row carry the same statistics
	for row := 2; row <= 10; row++ {
		assertEpochRow(t, st, row, testBaselineEpoch)
	}

	// moving ranges: none on the first row, then one per measurement
	assert.True(t, cellIsEmpty(t, st, 2, table.MovingRange))
	for i, mr := range []float64{2, 1, 2, 1, 2, 1, 2} {
		assert.Equal(t, mr, cellNumber(t, st, 3+i, table.MovingRange))
	}
	assert.Equal(t, 2.1, cellNumber(t, st, 10, table.MovingRange))

	// no rule and no signal anywhere
	for row := 2; row <= 10; row++ {
		assert.True(t, cellIsEmpty(t, st, row, table.Trigger))
		assert.True(t, cellIsEmpty(t, st, row, table.Signal))
	}

	// the header row is never touched
	assert.True(t, cellIsEmpty(t, st, 1, table.Measurement))
	assert.True(t, cellIsEmpty(t, st, 1, table.DPA))
}

func TestRunBaselineOnly(t *testing.T) {
	st := table.NewMemoryFromValues(testBaseline)
	r := newTestRunner(t, st, Store("memory"))

	summary, err := r.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 8, summary.Rows)
	assert.Equal(t, testBaselineEpoch, summary.Baseline)
	assert.Equal(t, testBaselineEpoch, summary.Final)
	for row := 2; row <= 9; row++ {
		assertEpochRow(t, st, row, testBaselineEpoch)
	}
	assert.True(t, cellIsEmpty(t, st, 10, table.DPA))
}

func TestRunShiftRebaseline(t *testing.T) {
	st := table.NewMemoryFromValues(append(testBaseline, 13, 14, 13.5, 14.5, 13))
	r := newTestRunner(t, st, Store("memory"))

	summary, err := r.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 13, summary.Rows)
	assert.Equal(t, 1, summary.Rule2)
	assert.Equal(t, 0, summary.Rule3)
	assert.Equal(t, []Trigger{{Row: 14, Label: chart.LabelRule2}}, summary.Triggers)
	assert.Equal(t, testRule2Epoch, summary.Final)

	// rewrite reaches back exactly eight rows, rows before it keep the baseline
	for row := 2; row <= 6; row++ {
		assertEpochRow(t, st, row, testBaselineEpoch)
	}
	for row := 7; row <= 14; row++ {
		assertEpochRow(t, st, row, testRule2Epoch)
	}

	// the trigger marker appears only on the row that fired
	assert.Equal(t, chart.LabelRule2, cellText(t, st, 14, table.Trigger))
	for row := 2; row <= 13; row++ {
		assert.True(t, cellIsEmpty(t, st, row, table.Trigger), "unexpected trigger marker at row %d", row)
	}

	// moving ranges are never rewritten
	assert.Equal(t, 2.0, cellNumber(t, st, 10, table.MovingRange))
	assert.Equal(t, 1.5, cellNumber(t, st, 14, table.MovingRange))
}

func TestRunTrendRebaseline(t *testing.T) {
	st := table.NewMemoryFromValues(append(testBaseline, 15, 13, 15))
	r := newTestRunner(t, st, Store("memory"))

	summary, err := r.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 11, summary.Rows)
	assert.Equal(t, 0, summary.Rule2)
	assert.Equal(t, 1, summary.Rule3)
	assert.Equal(t, []Trigger{{Row: 12, Label: chart.LabelRule3}}, summary.Triggers)
	assert.Equal(t, testRule3Epoch, summary.Final)

	// rewrite reaches back exactly four rows
	for row := 2; row <= 8; row++ {
		assertEpochRow(t, st, row, testBaselineEpoch)
	}
	for row := 9; row <= 12; row++ {
		assertEpochRow(t, st, row, testRule3Epoch)
	}

	assert.Equal(t, chart.LabelRule3, cellText(t, st, 12, table.Trigger))
	assert.True(t, cellIsEmpty(t, st, 11, table.Trigger))
}

func TestRunSignal(t *testing.T) {
	t.Run("beyond upper limit", func(t *testing.T) {
		st := table.NewMemoryFromValues(append(testBaseline, 25))
		r := newTestRunner(t, st, Store("memory"))

		summary, err := r.Run(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, 1, summary.Signals)
		assert.Equal(t, 0, summary.Rule2)
		assert.Equal(t, 0, summary.Rule3)

		// an outlier is flagged but never re-baselines the chart
		assert.True(t, cellFlag(t, st, 10, table.Signal))
		assert.True(t, cellIsEmpty(t, st, 10, table.Trigger))
		assertEpochRow(t, st, 10, testBaselineEpoch)
		assert.Equal(t, 10.0, cellNumber(t, st, 10, table.MovingRange))
	})
	t.Run("beyond lower limit", func(t *testing.T) {
		st := table.NewMemoryFromValues(append(testBaseline, 1))
		r := newTestRunner(t, st, Store("memory"))

		summary, err := r.Run(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, 1, summary.Signals)
		assert.True(t, cellFlag(t, st, 10, table.Signal))
		assertEpochRow(t, st, 10, testBaselineEpoch)
	})
}

func TestRunIdempotent(t *testing.T) {
	st := table.NewMemoryFromValues(append(testBaseline, 13, 14, 13.5, 14.5, 13, 25))
	r := newTestRunner(t, st, Store("memory"))

	first, err := r.Run(context.Background())
	assert.NoError(t, err)

	before := snapshot(t, st, 15)

	second, err := r.Run(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, before, snapshot(t, st, 15))
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Rule2, second.Rule2)
	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, first.Final, second.Final)
}

func snapshot(t *testing.T, st table.Store, lastRow int) map[table.Column][]table.Cell {
	t.Helper()
	out := map[table.Column][]table.Cell{}
	for _, col := range table.Columns() {
		cells, err := st.ReadColumn(context.Background(), col, table.FirstDataRow, lastRow)
		assert.NoError(t, err)
		out[col] = cells
	}
	return out
}

func TestRunInsufficientData(t *testing.T) {
	t.Run("short store", func(t *testing.T) {
		st := table.NewMemoryFromValues([]float64{10, 12, 11, 13, 12})
		r := newTestRunner(t, st, Store("memory"))

		_, err := r.Run(context.Background())

		var insufficient chart.InsufficientDataError
		assert.ErrorAs(t, err, &insufficient)
		assert.Equal(t, chart.BaselineLen, insufficient.Required)
		assert.Equal(t, 5, insufficient.Found)

		// the run aborts before anything is written
		assert.True(t, cellIsEmpty(t, st, 2, table.DPA))
		assert.True(t, cellIsEmpty(t, st, 3, table.MovingRange))
		assert.True(t, cellIsEmpty(t, st, 2, table.Label))
	})
	t.Run("empty store", func(t *testing.T) {
		st := table.NewMemory()
		r := newTestRunner(t, st, Store("memory"))

		_, err := r.Run(context.Background())

		var insufficient chart.InsufficientDataError
		assert.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 0, insufficient.Found)
	})
	t.Run("gap in baseline window", func(t *testing.T) {
		st := table.NewMemoryFromValues(testBaseline)
		err := st.WriteCell(context.Background(), 5, table.Measurement, table.Empty())
		assert.NoError(t, err)
		r := newTestRunner(t, st, Store("memory"))

		_, err = r.Run(context.Background())

		var insufficient chart.InsufficientDataError
		assert.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 7, insufficient.Found)
	})
}

func TestRunMalformedMeasurement(t *testing.T) {
	t.Run("baseline cell", func(t *testing.T) {
		st := table.NewMemoryFromValues(testBaseline)
		err := st.WriteCell(context.Background(), 5, table.Measurement, table.Text("twelve"))
		assert.NoError(t, err)
		r := newTestRunner(t, st, Store("memory"))

		_, err = r.Run(context.Background())

		var malformed chart.MalformedMeasurementError
		assert.ErrorAs(t, err, &malformed)
		assert.Equal(t, 5, malformed.Row)
		assert.Equal(t, "twelve", malformed.Raw)
		assert.True(t, cellIsEmpty(t, st, 2, table.DPA))
	})
	t.Run("sequential cell", func(t *testing.T) {
		st := table.NewMemoryFromValues(testBaseline)
		err := st.WriteCell(context.Background(), 10, table.Measurement, table.Text("n/a"))
		assert.NoError(t, err)
		r := newTestRunner(t, st, Store("memory"))

		_, err = r.Run(context.Background())

		var malformed chart.MalformedMeasurementError
		assert.ErrorAs(t, err, &malformed)
		assert.Equal(t, 10, malformed.Row)

		// the baseline was already written, the bad row never is
		assertEpochRow(t, st, 9, testBaselineEpoch)
		assert.True(t, cellIsEmpty(t, st, 10, table.DPA))
		assert.True(t, cellIsEmpty(t, st, 10, table.MovingRange))
	})
	t.Run("empty sequential cell", func(t *testing.T) {
		st := table.NewMemoryFromValues(testBaseline)
		err := st.WriteCell(context.Background(), 11, table.Measurement, table.Number(13))
		assert.NoError(t, err)
		r := newTestRunner(t, st, Store("memory"))

		_, err = r.Run(context.Background())

		var malformed chart.MalformedMeasurementError
		assert.ErrorAs(t, err, &malformed)
		assert.Equal(t, 10, malformed.Row)
		assert.Equal(t, "", malformed.Raw)
	})
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ReadCell(ctx context.Context, row int, col table.Column) (table.Cell, error) {
	args := m.Called(ctx, row, col)
	return args.Get(0).(table.Cell), args.Error(1)
}

func (m *mockStore) WriteCell(ctx context.Context, row int, col table.Column, cell table.Cell) error {
	args := m.Called(ctx, row, col, cell)
	return args.Error(0)
}

func (m *mockStore) ReadColumn(ctx context.Context, col table.Column, startRow, endRow int) ([]table.Cell, error) {
	args := m.Called(ctx, col, startRow, endRow)
	cells, _ := args.Get(0).([]table.Cell)
	return cells, args.Error(1)
}

func (m *mockStore) WriteRange(ctx context.Context, startRow, endRow int, rw table.RangeWrite) error {
	args := m.Called(ctx, startRow, endRow, rw)
	return args.Error(0)
}

func (m *mockStore) LastRow(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestRunStoreFailure(t *testing.T) {
	t.Run("last row", func(t *testing.T) {
		st := new(mockStore)
		st.Test(silenceT(t))
		st.On("LastRow", mock.Anything).Return(0, table.StoreAccessError{Op: "read", Err: assert.AnError})
		r := newTestRunner(t, st, Store("memory"))

		_, err := r.Run(context.Background())

		var access table.StoreAccessError
		assert.ErrorAs(t, err, &access)
		st.AssertExpectations(t)
	})
	t.Run("baseline write", func(t *testing.T) {
		cells := make([]table.Cell, 0, len(testBaseline))
		for _, v := range testBaseline {
			cells = append(cells, table.Number(v))
		}
		st := new(mockStore)
		st.Test(silenceT(t))
		st.On("LastRow", mock.Anything).Return(9, nil)
		st.On("ReadColumn", mock.Anything, table.Measurement, 2, 9).Return(cells, nil)
		st.On("WriteRange", mock.Anything, 2, 9, mock.Anything).Return(table.StoreAccessError{Op: "write", Row: 2, Err: assert.AnError})
		r := newTestRunner(t, st, Store("memory"))

		_, err := r.Run(context.Background())

		var access table.StoreAccessError
		assert.ErrorAs(t, err, &access)
		st.AssertExpectations(t)
	})
}

func TestRunPublishesReport(t *testing.T) {
	st := table.NewMemoryFromValues(append(testBaseline, 13, 14, 13.5, 14.5, 13))
	cfg, errs := newConfig(ID("run-1"), Series("deploy_lead_time[team=core]"))
	if len(errs) > 0 {
		t.Fatalf("unexpected config errors: %v", errs)
	}

	m := new(mockNotifier)
	m.Test(silenceT(t))
	m.On("Send", mock.Anything, mock.MatchedBy(func(r Report) bool {
		return r.RunID == "run-1" &&
			r.Series == "deploy_lead_time[team=core]" &&
			r.Outcome == OutcomeCompleted &&
			r.Rows == 13 &&
			r.Rule2 == 1 &&
			len(r.Triggers) == 1
	})).Return(nil)

	r := &Runner{
		Config:   cfg,
		store:    st,
		bus:      eventbus.New(),
		notifier: m,
		errors:   noopReporter{},
		log:      discardLogger(),
	}
	events, done := r.bus.Subscribe()
	go notifyLoop(events, done, r.notifier, cfg, r.log)

	_, err := r.Run(context.Background())
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))

	m.AssertExpectations(t)
}

func TestRunReportsFailure(t *testing.T) {
	st := table.NewMemoryFromValues([]float64{10, 12})
	cfg, errs := newConfig(ID("run-2"), Series("deploy_lead_time"))
	if len(errs) > 0 {
		t.Fatalf("unexpected config errors: %v", errs)
	}

	m := new(mockNotifier)
	m.Test(silenceT(t))
	m.On("Send", mock.Anything, mock.MatchedBy(func(r Report) bool {
		return r.Outcome == OutcomeFailed && r.Error != ""
	})).Return(nil)

	r := &Runner{
		Config:   cfg,
		store:    st,
		bus:      eventbus.New(),
		notifier: m,
		errors:   noopReporter{},
		log:      discardLogger(),
	}
	events, done := r.bus.Subscribe()
	go notifyLoop(events, done, r.notifier, cfg, r.log)

	_, err := r.Run(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))

	m.AssertExpectations(t)
}
