package table

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a map-backed Store.  It is safe for concurrent use, though the
// engine itself runs single-writer.
type Memory struct {
	mu   sync.RWMutex
	rows map[int]map[Column]Cell
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows: map[int]map[Column]Cell{},
	}
}

// NewMemoryFromValues returns an in-memory store with the given measurements
// populated in column D starting at the first data row.
func NewMemoryFromValues(values []float64) *Memory {
	m := NewMemory()
	for i, v := range values {
		m.set(FirstDataRow+i, Measurement, Number(v))
	}
	return m
}

func (m *Memory) set(row int, col Column, cell Cell) {
	r, ok := m.rows[row]
	if !ok {
		r = map[Column]Cell{}
		m.rows[row] = r
	}
	switch cell.IsEmpty() {
	case true:
		delete(r, col)
	default:
		r[col] = cell
	}
}

// ReadCell returns the cell at the given address, or an empty cell if the
// address was never written.
func (m *Memory) ReadCell(_ context.Context, row int, col Column) (Cell, error) {
	if row < HeaderRow {
		return Cell{}, StoreAccessError{Op: "read", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[row][col], nil
}

// WriteCell sets the cell at the given address.  Writing an empty cell
// clears the address.
func (m *Memory) WriteCell(_ context.Context, row int, col Column, cell Cell) error {
	if row < HeaderRow {
		return StoreAccessError{Op: "write", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(row, col, cell)
	return nil
}

// ReadColumn returns the cells of one column over the inclusive row range,
// ordered by row.  Unwritten addresses yield empty cells.
func (m *Memory) ReadColumn(_ context.Context, col Column, startRow, endRow int) ([]Cell, error) {
	if err := CheckRange(startRow, endRow); err != nil {
		return nil, StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Cell, 0, endRow-startRow+1)
	for row := startRow; row <= endRow; row++ {
		out = append(out, m.rows[row][col])
	}
	return out, nil
}

// WriteRange stamps every row in the inclusive range with the derived
// columns of one epoch, under a single lock.
func (m *Memory) WriteRange(_ context.Context, startRow, endRow int, rw RangeWrite) error {
	if err := CheckRange(startRow, endRow); err != nil {
		return StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cells := rw.Cells()
	for row := startRow; row <= endRow; row++ {
		for col, cell := range cells {
			m.set(row, col, cell)
		}
	}
	return nil
}

// LastRow returns the last row with a populated measurement cell, or 0 when
// the store holds none.
func (m *Memory) LastRow(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := 0
	for row, cells := range m.rows {
		if row > last && !cells[Measurement].IsEmpty() {
			last = row
		}
	}
	return last, nil
}
