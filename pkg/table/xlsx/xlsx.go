// Package xlsx implements the chart table on an Excel workbook, addressing
// cells with real sheet coordinates (D2, O10, ...).
package xlsx

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/processchart/xmr/pkg/table"
)

// Store implements table.Store on one sheet of an xlsx workbook.  Mutations
// stay in memory until Save writes the workbook back to disk.
type Store struct {
	f     *excelize.File
	path  string
	sheet string
}

// Open loads the workbook at path, creating it if it does not exist, and
// ensures the named sheet is present.
func Open(path, sheet string) (*Store, error) {
	if sheet == "" {
		return nil, fmt.Errorf("sheet name required")
	}
	if _, err := os.Stat(path); err != nil {
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			return nil, fmt.Errorf("failed to name sheet: %w", err)
		}
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("failed to create workbook: %w", err)
		}
		return &Store{f: f, path: path, sheet: sheet}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	s := &Store{f: f, path: path, sheet: sheet}
	if err := s.ensureSheet(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSheet() error {
	for _, name := range s.f.GetSheetList() {
		if name == s.sheet {
			return nil
		}
	}
	if _, err := s.f.NewSheet(s.sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", s.sheet, err)
	}
	return nil
}

// Save writes the workbook back to its path.
func (s *Store) Save() error {
	if err := s.f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close releases the workbook without saving.
func (s *Store) Close() error {
	return s.f.Close()
}

// ReadCell returns the cell at the given address, or an empty cell if the
// address was never written.
func (s *Store) ReadCell(_ context.Context, row int, col table.Column) (table.Cell, error) {
	if row < table.HeaderRow {
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	raw, err := s.f.GetCellValue(s.sheet, axis(row, col))
	if err != nil {
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: err}
	}
	return table.ParseCell(raw), nil
}

// WriteCell sets the cell at the given address.
func (s *Store) WriteCell(_ context.Context, row int, col table.Column, cell table.Cell) error {
	if row < table.HeaderRow {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	if err := s.set(row, col, cell); err != nil {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: err}
	}
	return nil
}

func (s *Store) set(row int, col table.Column, cell table.Cell) error {
	addr := axis(row, col)
	switch cell.Kind {
	case table.KindNumber:
		return s.f.SetCellValue(s.sheet, addr, cell.Number)
	case table.KindText:
		return s.f.SetCellValue(s.sheet, addr, cell.Text)
	case table.KindFlag:
		return s.f.SetCellBool(s.sheet, addr, cell.Flag)
	default:
		return s.f.SetCellValue(s.sheet, addr, nil)
	}
}

// ReadColumn returns the cells of one column over the inclusive row range,
// ordered by row.
func (s *Store) ReadColumn(ctx context.Context, col table.Column, startRow, endRow int) ([]table.Cell, error) {
	if err := table.CheckRange(startRow, endRow); err != nil {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}
	out := make([]table.Cell, 0, endRow-startRow+1)
	for row := startRow; row <= endRow; row++ {
		cell, err := s.ReadCell(ctx, row, col)
		if err != nil {
			return nil, err
		}
		out = append(out, cell)
	}
	return out, nil
}

// WriteRange stamps every row in the inclusive range with the derived
// columns of one epoch.
func (s *Store) WriteRange(_ context.Context, startRow, endRow int, rw table.RangeWrite) error {
	if err := table.CheckRange(startRow, endRow); err != nil {
		return table.StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	cells := rw.Cells()
	for row := startRow; row <= endRow; row++ {
		for col, cell := range cells {
			if err := s.set(row, col, cell); err != nil {
				return table.StoreAccessError{Op: "write range", Row: row, Col: col, Err: err}
			}
		}
	}
	return nil
}

// LastRow returns the last row with a populated measurement cell, or 0 when
// the sheet holds none.
func (s *Store) LastRow(_ context.Context) (int, error) {
	rows, err := s.f.GetRows(s.sheet)
	if err != nil {
		return 0, table.StoreAccessError{Op: "last row", Err: err}
	}
	colIdx, err := excelize.ColumnNameToNumber(string(table.Measurement))
	if err != nil {
		return 0, table.StoreAccessError{Op: "last row", Err: err}
	}
	last := 0
	for i, r := range rows {
		if len(r) >= colIdx && r[colIdx-1] != "" {
			last = i + 1
		}
	}
	return last, nil
}

func axis(row int, col table.Column) string {
	return fmt.Sprintf("%s%d", col, row)
}
