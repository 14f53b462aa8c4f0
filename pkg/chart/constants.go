package chart

// Control-chart constants for individuals and moving range (n=1) charts.
const (
	// D2 is the bias correction that scales the average moving range to an
	// estimate of process sigma at subgroup size 2; the control limits sit
	// at 3/D2 average moving ranges from the center line.
	D2 = 1.128

	// D4 bounds the moving range itself: mrucl = D4 * mra.
	D4 = 3.27
)

// BaselineLen is the number of measurements that establish the baseline.
const BaselineLen = 8

// Re-baseline windows: a sustained run re-baselines over the trailing eight
// rows, a warning-zone trend over the trailing four.
const (
	ShiftWindow = 8
	TrendWindow = 4
)

// Sheet row numbering: row 1 is a header and the baseline occupies the
// first eight data rows.  Sequential evaluation starts on the row after the
// baseline window.
const (
	BaselineStartRow = 2
	BaselineEndRow   = BaselineStartRow + BaselineLen - 1
)
