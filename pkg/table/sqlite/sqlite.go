// Package sqlite implements the chart table on a SQLite database using the
// pure Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/processchart/xmr/pkg/table"
)

// One database row per sheet row, one column per chart column.  Numeric
// columns D-L are REAL, the marker and label columns are TEXT, and the
// signal flag is INTEGER.
const schema = `
CREATE TABLE IF NOT EXISTS chart_rows (
	row INTEGER PRIMARY KEY,
	d REAL,
	e REAL,
	f REAL,
	g REAL,
	h REAL,
	i REAL,
	j REAL,
	k REAL,
	l REAL,
	m TEXT,
	n TEXT,
	o INTEGER
);`

// Store implements table.Store on a single SQLite table.
type Store struct {
	db *sql.DB
}

// New opens or creates the database at path and migrates the schema.  Use
// ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// the pure Go driver serializes access through a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadCell returns the cell at the given address, or an empty cell if the
// address was never written.
func (s *Store) ReadCell(ctx context.Context, row int, col table.Column) (table.Cell, error) {
	if row < table.HeaderRow {
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	name, err := sqlColumn(col)
	if err != nil {
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: err}
	}
	var v interface{}
	q := fmt.Sprintf("SELECT %s FROM chart_rows WHERE row = ?", name)
	err = s.db.QueryRowContext(ctx, q, row).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return table.Empty(), nil
	case err != nil:
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: err}
	}
	return toCell(col, v), nil
}

// WriteCell sets the cell at the given address.
func (s *Store) WriteCell(ctx context.Context, row int, col table.Column, cell table.Cell) error {
	if row < table.HeaderRow {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	name, err := sqlColumn(col)
	if err != nil {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: err}
	}
	q := fmt.Sprintf("INSERT INTO chart_rows (row, %s) VALUES (?, ?) ON CONFLICT(row) DO UPDATE SET %s = excluded.%s", name, name, name)
	if _, err := s.db.ExecContext(ctx, q, row, toValue(cell)); err != nil {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: err}
	}
	return nil
}

// ReadColumn returns the cells of one column over the inclusive row range,
// ordered by row.  Rows missing from the table yield empty cells.
func (s *Store) ReadColumn(ctx context.Context, col table.Column, startRow, endRow int) ([]table.Cell, error) {
	if err := table.CheckRange(startRow, endRow); err != nil {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}
	name, err := sqlColumn(col)
	if err != nil {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}

	q := fmt.Sprintf("SELECT row, %s FROM chart_rows WHERE row BETWEEN ? AND ? ORDER BY row", name)
	rows, err := s.db.QueryContext(ctx, q, startRow, endRow)
	if err != nil {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}
	defer rows.Close()

	out := make([]table.Cell, endRow-startRow+1)
	for rows.Next() {
		var r int
		var v interface{}
		if err := rows.Scan(&r, &v); err != nil {
			return nil, table.StoreAccessError{Op: "read column", Row: r, Col: col, Err: err}
		}
		out[r-startRow] = toCell(col, v)
	}
	if err := rows.Err(); err != nil {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}
	return out, nil
}

// WriteRange stamps every row in the inclusive range with the derived
// columns of one epoch inside a single transaction.
func (s *Store) WriteRange(ctx context.Context, startRow, endRow int, rw table.RangeWrite) error {
	if err := table.CheckRange(startRow, endRow); err != nil {
		return table.StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return table.StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	const q = `INSERT INTO chart_rows (row, e, g, h, i, j, k, l, n) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(row) DO UPDATE SET e=excluded.e, g=excluded.g, h=excluded.h, i=excluded.i, j=excluded.j, k=excluded.k, l=excluded.l, n=excluded.n`
	for row := startRow; row <= endRow; row++ {
		if _, err := tx.ExecContext(ctx, q, row, rw.DPA, rw.MRA, rw.LCL, rw.DLA, rw.DUA, rw.UCL, rw.MRUCL, rw.Label); err != nil {
			tx.Rollback()
			return table.StoreAccessError{Op: "write range", Row: row, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return table.StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	return nil
}

// LastRow returns the last row with a populated measurement cell, or 0 when
// the table holds none.
func (s *Store) LastRow(ctx context.Context) (int, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(row) FROM chart_rows WHERE d IS NOT NULL").Scan(&last); err != nil {
		return 0, table.StoreAccessError{Op: "last row", Err: err}
	}
	if !last.Valid {
		return 0, nil
	}
	return int(last.Int64), nil
}

func sqlColumn(col table.Column) (string, error) {
	switch col {
	case table.Measurement, table.DPA, table.MovingRange, table.MRA, table.LCL,
		table.DLA, table.DUA, table.UCL, table.MRUCL, table.Trigger, table.Label, table.Signal:
		return strings.ToLower(string(col)), nil
	default:
		return "", fmt.Errorf("unknown column %q", col)
	}
}

func toValue(c table.Cell) interface{} {
	switch c.Kind {
	case table.KindNumber:
		return c.Number
	case table.KindText:
		return c.Text
	case table.KindFlag:
		return c.Flag
	default:
		return nil
	}
}

func toCell(col table.Column, v interface{}) table.Cell {
	switch val := v.(type) {
	case nil:
		return table.Empty()
	case float64:
		return table.Number(val)
	case int64:
		// INTEGER affinity: the signal column round-trips as 0/1
		if col == table.Signal {
			return table.Flag(val != 0)
		}
		return table.Number(float64(val))
	case bool:
		return table.Flag(val)
	case string:
		return table.ParseCell(val)
	case []byte:
		return table.ParseCell(string(val))
	default:
		return table.Empty()
	}
}
