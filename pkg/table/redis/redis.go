// Package redis implements the chart table on Redis: one hash per sheet row
// plus a sorted-set index over populated measurement rows.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/processchart/xmr/pkg/table"
)

// Store implements table.Store on Redis.  Each sheet row is one hash keyed
// <prefix>:row:<n> with one field per column letter; rows with a populated
// measurement are indexed in the sorted set <prefix>:rows.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.  An empty prefix
// defaults to "xmr".
func New(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	if prefix == "" {
		prefix = "xmr"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Store{client: client, prefix: prefix}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) rowKey(row int) string {
	return fmt.Sprintf("%s:row:%d", s.prefix, row)
}

func (s *Store) indexKey() string {
	return s.prefix + ":rows"
}

// ReadCell returns the cell at the given address, or an empty cell if the
// address was never written.
func (s *Store) ReadCell(ctx context.Context, row int, col table.Column) (table.Cell, error) {
	if row < table.HeaderRow {
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	raw, err := s.client.HGet(ctx, s.rowKey(row), string(col)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return table.Empty(), nil
	case err != nil:
		return table.Cell{}, table.StoreAccessError{Op: "read", Row: row, Col: col, Err: err}
	}
	return table.ParseCell(raw), nil
}

// WriteCell sets the cell at the given address and keeps the measurement
// index in step.
func (s *Store) WriteCell(ctx context.Context, row int, col table.Column, cell table.Cell) error {
	if row < table.HeaderRow {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: fmt.Errorf("row index %d out of range", row)}
	}
	pipe := s.client.TxPipeline()
	switch cell.IsEmpty() {
	case true:
		pipe.HDel(ctx, s.rowKey(row), string(col))
	default:
		pipe.HSet(ctx, s.rowKey(row), string(col), cell.String())
	}
	if col == table.Measurement {
		switch cell.IsEmpty() {
		case true:
			pipe.ZRem(ctx, s.indexKey(), strconv.Itoa(row))
		default:
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(row), Member: strconv.Itoa(row)})
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return table.StoreAccessError{Op: "write", Row: row, Col: col, Err: err}
	}
	return nil
}

// ReadColumn returns the cells of one column over the inclusive row range,
// ordered by row, fetching the whole range in one pipeline.
func (s *Store) ReadColumn(ctx context.Context, col table.Column, startRow, endRow int) ([]table.Cell, error) {
	if err := table.CheckRange(startRow, endRow); err != nil {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, endRow-startRow+1)
	for row := startRow; row <= endRow; row++ {
		cmds = append(cmds, pipe.HGet(ctx, s.rowKey(row), string(col)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, table.StoreAccessError{Op: "read column", Row: startRow, Col: col, Err: err}
	}

	out := make([]table.Cell, 0, len(cmds))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		switch {
		case errors.Is(err, redis.Nil):
			out = append(out, table.Empty())
		case err != nil:
			return nil, table.StoreAccessError{Op: "read column", Row: startRow + i, Col: col, Err: err}
		default:
			out = append(out, table.ParseCell(raw))
		}
	}
	return out, nil
}

// WriteRange stamps every row in the inclusive range with the derived
// columns of one epoch inside a single transactional pipeline.
func (s *Store) WriteRange(ctx context.Context, startRow, endRow int, rw table.RangeWrite) error {
	if err := table.CheckRange(startRow, endRow); err != nil {
		return table.StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	fields := make(map[string]interface{})
	for col, cell := range rw.Cells() {
		fields[string(col)] = cell.String()
	}
	pipe := s.client.TxPipeline()
	for row := startRow; row <= endRow; row++ {
		pipe.HSet(ctx, s.rowKey(row), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return table.StoreAccessError{Op: "write range", Row: startRow, Err: err}
	}
	return nil
}

// LastRow returns the highest indexed measurement row, or 0 when the index
// is empty.
func (s *Store) LastRow(ctx context.Context) (int, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return 0, table.StoreAccessError{Op: "last row", Err: err}
	}
	if len(zs) == 0 {
		return 0, nil
	}
	return int(zs[0].Score), nil
}
