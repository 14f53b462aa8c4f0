package chart

import (
	"fmt"
	"math"
)

// Label values carried in the persistent rule column of the sheet.
const (
	LabelBaseline = "Baseline"
	LabelRule2    = "Rule 2"
	LabelRule3    = "Rule 3"
)

// Epoch is one regime of control statistics, derived from a window of
// measurements and governing a contiguous row range until superseded.  All
// fields are rounded to two decimals at construction and every later
// comparison consumes the rounded values, so the arithmetic matches what a
// sheet holding the stored cells would compute.
type Epoch struct {
	DPA   float64 // center line, the mean of the window
	MRA   float64 // mean moving range of the window
	LCL   float64
	DLA   float64
	DUA   float64
	UCL   float64
	MRUCL float64
	Label string
}

// NewEpoch derives a regime from a window of measurements and its moving
// ranges.  The ranges are supplied separately because the baseline window
// carries one fewer range than measurements, while re-baseline windows carry
// a range for every row.
func NewEpoch(values []float64, ranges []float64, label string) (Epoch, error) {
	if len(values) == 0 || len(ranges) == 0 {
		return Epoch{}, fmt.Errorf("epoch requires a non-empty window")
	}
	dpa := mean(values)
	mra := mean(ranges)
	lcl := dpa - (3.0/D2)*mra
	ucl := dpa + (3.0/D2)*mra
	return Epoch{
		DPA:   round2(dpa),
		MRA:   round2(mra),
		LCL:   round2(lcl),
		DLA:   round2((lcl + dpa) / 2),
		DUA:   round2((dpa + ucl) / 2),
		UCL:   round2(ucl),
		MRUCL: round2(D4 * mra),
		Label: label,
	}, nil
}

// MR is the moving-range function: the absolute difference between
// consecutive measurements, rounded at the point of computation so that
// downstream windows consume the stored value.
func MR(prev, curr float64) float64 {
	return round2(math.Abs(curr - prev))
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
