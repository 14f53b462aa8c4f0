package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/processchart/xmr/pkg/rng"
	"github.com/processchart/xmr/pkg/table"
	"github.com/processchart/xmr/pkg/table/redis"
	"github.com/processchart/xmr/pkg/table/sqlite"
	"github.com/processchart/xmr/pkg/table/xlsx"
)

// xmrseed populates a measurement store so a chart has something to run
// over: either synthetic draws from a configurable distribution, with an
// optional level shift partway through the stream, or the first column of a
// CSV file.

type seedConfig struct {
	store         string
	path          string
	sheet         string
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	count      int
	dist       string
	mean       float64
	stdev      float64
	shift      float64
	shiftAfter int
	seed       int64
	csvPath    string
	appendRows bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Printf("Could not parse configuration: %s\n\nUse xmrseed --help for options\n", err)
		}
		os.Exit(1)
	}

	values, err := measurements(cfg)
	if err != nil {
		fmt.Println("Could not build measurements:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Println("Could not open store:", err)
		os.Exit(1)
	}

	start := table.FirstDataRow
	if cfg.appendRows {
		last, err := st.LastRow(ctx)
		if err != nil {
			fmt.Println("Could not find last row:", err)
			_ = cleanup()
			os.Exit(1)
		}
		if last >= table.FirstDataRow {
			start = last + 1
		}
	}

	for i, v := range values {
		if err := st.WriteCell(ctx, start+i, table.Measurement, table.Number(v)); err != nil {
			fmt.Println("Could not write measurement:", err)
			_ = cleanup()
			os.Exit(1)
		}
	}

	if err := cleanup(); err != nil {
		fmt.Println("Could not close store:", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d measurements to the %s store, rows %d-%d\n", len(values), cfg.store, start, start+len(values)-1)
	os.Exit(0)
}

func parseFlags(args []string) (seedConfig, error) {
	var cfg seedConfig
	pf := pflag.NewFlagSet("xmrseed", pflag.ContinueOnError)
	pf.StringVar(&cfg.store, "store", "sqlite", "store backend to seed (sqlite, xlsx, redis)")
	pf.StringVar(&cfg.path, "path", "", "file path for the sqlite or xlsx store")
	pf.StringVar(&cfg.sheet, "sheet", "Process", "sheet name for the xlsx store")
	pf.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "redis server address")
	pf.StringVar(&cfg.redisPassword, "redis-password", "", "redis password")
	pf.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number")
	pf.StringVar(&cfg.redisPrefix, "redis-prefix", "xmr", "prefix for redis keys")
	pf.IntVarP(&cfg.count, "count", "n", 30, "number of measurements to generate")
	pf.StringVar(&cfg.dist, "dist", "normal", "distribution to draw from (normal, lognormal, poisson)")
	pf.Float64Var(&cfg.mean, "mean", 12.0, "process center (mu for lognormal, lambda for poisson)")
	pf.Float64Var(&cfg.stdev, "stdev", 1.5, "process spread (sigma for lognormal, ignored for poisson)")
	pf.Float64Var(&cfg.shift, "shift", 0, "offset added to every draw after --shift-after")
	pf.IntVar(&cfg.shiftAfter, "shift-after", 0, "number of draws before the shift applies")
	pf.Int64Var(&cfg.seed, "seed", 0, "seed for reproducible draws, 0 seeds from the clock")
	pf.StringVar(&cfg.csvPath, "csv", "", "import measurements from the first column of a CSV file instead of generating them")
	pf.BoolVar(&cfg.appendRows, "append", false, "write after the current last row instead of starting at the top")
	if err := pf.Parse(args); err != nil {
		return seedConfig{}, err
	}
	return cfg, nil
}

func measurements(cfg seedConfig) ([]float64, error) {
	if cfg.csvPath != "" {
		return readCSV(cfg.csvPath)
	}
	gen, err := generator(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, cfg.count)
	for i := 0; i < cfg.count; i++ {
		out = append(out, gen.Rand())
	}
	return out, nil
}

func generator(cfg seedConfig) (rng.RNG, error) {
	var gen rng.RNG
	switch cfg.dist {
	case "normal":
		switch cfg.seed {
		case 0:
			gen = rng.NewNormalRNG(cfg.mean, cfg.stdev)
		default:
			gen = rng.NewNormalRNGWithSeed(cfg.mean, cfg.stdev, cfg.seed)
		}
	case "lognormal":
		gen = rng.NewLogNormalRNG(cfg.mean, cfg.stdev)
	case "poisson":
		gen = rng.NewPoissonRNG(cfg.mean)
	default:
		return nil, fmt.Errorf("unknown distribution: %s", cfg.dist)
	}
	if cfg.shift != 0 {
		gen = rng.NewShiftRNG(gen, cfg.shift, cfg.shiftAfter)
	}
	return gen, nil
}

// readCSV takes measurements from the first column of a CSV file.  A header
// row is skipped when its first field is not numeric.
func readCSV(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(records))
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("line %d: %q is not numeric", i+1, record[0])
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no measurements found in %s", path)
	}
	return values, nil
}

func openStore(ctx context.Context, cfg seedConfig) (table.Store, func() error, error) {
	switch cfg.store {
	case "sqlite":
		path := cfg.path
		if path == "" {
			path = "xmr.db"
		}
		st, err := sqlite.New(path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "xlsx":
		path := cfg.path
		if path == "" {
			path = "xmr.xlsx"
		}
		st, err := xlsx.Open(path, cfg.sheet)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error {
			if err := st.Save(); err != nil {
				return err
			}
			return st.Close()
		}, nil
	case "redis":
		st, err := redis.New(ctx, cfg.redisAddr, cfg.redisPassword, cfg.redisDB, cfg.redisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s (the memory store does not persist)", cfg.store)
	}
}
