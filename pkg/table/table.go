// Package table defines the tabular store consumed by the chart engine and
// provides an in-memory implementation for tests and embedded use.
//
// Addressing follows the fixed chart layout: row 1 is a header, measurements
// live in column D starting at row 2, and derived columns run E through O.
// Persistent backends live in the sqlite, xlsx, and redis subpackages.
package table

import (
	"context"
	"fmt"
	"strconv"
)

// Column identifies one column of the fixed chart layout.
type Column string

// The fixed column layout shared by the engine and every store backend.
const (
	Measurement Column = "D"
	DPA         Column = "E"
	MovingRange Column = "F"
	MRA         Column = "G"
	LCL         Column = "H"
	DLA         Column = "I"
	DUA         Column = "J"
	UCL         Column = "K"
	MRUCL       Column = "L"
	Trigger     Column = "M"
	Label       Column = "N"
	Signal      Column = "O"
)

// Row numbering contract: row 1 is a header, data starts at row 2.
const (
	HeaderRow    = 1
	FirstDataRow = 2
)

// Columns returns the full layout in sheet order.
func Columns() []Column {
	return []Column{Measurement, DPA, MovingRange, MRA, LCL, DLA, DUA, UCL, MRUCL, Trigger, Label, Signal}
}

// CellKind discriminates what a cell holds.
type CellKind int

const (
	KindEmpty CellKind = iota
	KindNumber
	KindText
	KindFlag
)

// Cell is a single value in the grid.  The zero value is an empty cell.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
	Flag   bool
}

// Empty returns an empty cell.
func Empty() Cell {
	return Cell{}
}

// Number returns a numeric cell.
func Number(v float64) Cell {
	return Cell{Kind: KindNumber, Number: v}
}

// Text returns a text cell.
func Text(s string) Cell {
	return Cell{Kind: KindText, Text: s}
}

// Flag returns a boolean flag cell.
func Flag(v bool) Cell {
	return Cell{Kind: KindFlag, Flag: v}
}

// IsEmpty reports whether the cell holds nothing.
func (c Cell) IsEmpty() bool {
	return c.Kind == KindEmpty
}

// Float returns the numeric value of the cell, reporting false when the cell
// is not numeric.
func (c Cell) Float() (float64, bool) {
	if c.Kind != KindNumber {
		return 0, false
	}
	return c.Number, true
}

// String renders the cell the way it would appear in a sheet.
func (c Cell) String() string {
	switch c.Kind {
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindText:
		return c.Text
	case KindFlag:
		switch c.Flag {
		case true:
			return "TRUE"
		default:
			return "FALSE"
		}
	default:
		return ""
	}
}

// ParseCell converts a sheet string back into a cell: empty string to an
// empty cell, TRUE/FALSE to a flag, a numeric literal to a number, anything
// else to text.  Backends that persist cells as strings use this to round
// trip values.
func ParseCell(s string) Cell {
	switch s {
	case "":
		return Empty()
	case "TRUE":
		return Flag(true)
	case "FALSE":
		return Flag(false)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(v)
	}
	return Text(s)
}

// RangeWrite is the payload of a retroactive range rewrite: the derived
// columns one epoch stamps onto every row of a contiguous range.  The
// measurement, moving-range, trigger, and signal cells are never part of a
// range write.
type RangeWrite struct {
	DPA   float64
	MRA   float64
	LCL   float64
	DLA   float64
	DUA   float64
	UCL   float64
	MRUCL float64
	Label string
}

// Cells returns the column/cell pairs a range write stamps on each row of
// its range.
func (rw RangeWrite) Cells() map[Column]Cell {
	return map[Column]Cell{
		DPA:   Number(rw.DPA),
		MRA:   Number(rw.MRA),
		LCL:   Number(rw.LCL),
		DLA:   Number(rw.DLA),
		DUA:   Number(rw.DUA),
		UCL:   Number(rw.UCL),
		MRUCL: Number(rw.MRUCL),
		Label: Text(rw.Label),
	}
}

// Store is the tabular medium the chart engine reads measurements from and
// writes derived columns back to.  Implementations must tolerate reads of
// cells that were never written, returning an empty cell.
type Store interface {
	ReadCell(ctx context.Context, row int, col Column) (Cell, error)
	WriteCell(ctx context.Context, row int, col Column, cell Cell) error

	// ReadColumn returns the cells of one column over the inclusive row
	// range, ordered by row.
	ReadColumn(ctx context.Context, col Column, startRow, endRow int) ([]Cell, error)

	// WriteRange stamps the derived columns of every row in the inclusive
	// range with one epoch's fields and label, as atomically as the backend
	// allows.
	WriteRange(ctx context.Context, startRow, endRow int, rw RangeWrite) error

	// LastRow returns the last row with a populated measurement cell, or 0
	// when the store holds no measurements.
	LastRow(ctx context.Context) (int, error)
}

// StoreAccessError wraps a backend failure with the operation and cell
// address being accessed.
type StoreAccessError struct {
	Op  string
	Row int
	Col Column
	Err error
}

func (e StoreAccessError) Error() string {
	switch {
	case e.Col != "":
		return fmt.Sprintf("store %s failed at %s%d: %s", e.Op, e.Col, e.Row, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("store %s failed at row %d: %s", e.Op, e.Row, e.Err)
	default:
		return fmt.Sprintf("store %s failed: %s", e.Op, e.Err)
	}
}

func (e StoreAccessError) Unwrap() error {
	return e.Err
}

// CheckRange validates an inclusive row range before a backend touches it.
func CheckRange(startRow, endRow int) error {
	if startRow < HeaderRow || endRow < startRow {
		return fmt.Errorf("invalid row range %d..%d", startRow, endRow)
	}
	return nil
}
