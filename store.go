package xmr

import (
	"context"
	"errors"
	"time"

	"github.com/processchart/xmr/pkg/table"
	"github.com/processchart/xmr/pkg/table/redis"
	"github.com/processchart/xmr/pkg/table/sqlite"
	"github.com/processchart/xmr/pkg/table/xlsx"
)

// Default file paths for the persistent backends when none is configured.
const (
	defaultSQLitePath string = "xmr.db"
	defaultXLSXPath   string = "xmr.xlsx"
)

// Open builds the store selected by config and returns a runner over it
// together with a cleanup function that flushes and closes the store.  Use
// New instead when the caller owns the store.
func Open(options ...ConfigOption) (*Runner, func() error, error) {
	cfg, errs := newConfig(options...)
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return newRunner(store, cfg), cleanup, nil
}

func openStore(c Config) (table.Store, func() error, error) {
	switch c.Store {
	case StoreMemory:
		return table.NewMemory(), func() error { return nil }, nil
	case StoreSQLite:
		path := c.Path
		if path == "" {
			path = defaultSQLitePath
		}
		store, err := sqlite.New(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StoreXLSX:
		path := c.Path
		if path == "" {
			path = defaultXLSXPath
		}
		store, err := xlsx.Open(path, c.Sheet)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error {
			if err := store.Save(); err != nil {
				store.Close()
				return err
			}
			return store.Close()
		}, nil
	case StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := redis.New(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, c.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		// newConfig validates the backend, so this only trips on a
		// hand-built Config
		return nil, nil, errors.New("unknown store backend " + c.Store)
	}
}
