package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/processchart/xmr"
)

func main() {

	// environment files carry the secrets that never belong on the command
	// line: the rollbar token, the redis password
	_ = godotenv.Load()

	opts, err := xmr.ParseCommandLine()
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Printf("Could not parse configuration: %s\n\nUse xmr --help for options\n", err)
		}
		os.Exit(1)
	}

	// the handler level is a LevelVar because the configured level is not
	// known until the options are applied, but the runner captures the
	// default logger when it is built
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	runner, cleanup, err := xmr.Open(opts...)
	if err != nil {
		fmt.Printf("Error in config: %s\n", err)
		os.Exit(1)
	}
	level.Set(runner.Config.LogLevel)

	summary, runErr := runner.Run(context.Background())

	waitCtx, cancel := context.WithTimeout(context.Background(), runner.Config.NotifyTimeout)
	waitErr := runner.Wait(waitCtx)
	cancel()

	closeErr := cleanup()

	switch {
	case runErr != nil:
		fmt.Println("Chart run failed:", runErr)
		os.Exit(1)
	case closeErr != nil:
		fmt.Println("Could not close store:", closeErr)
		os.Exit(1)
	case waitErr != nil:
		fmt.Printf("Not all reports sent: %s\n", waitErr)
		os.Exit(1)
	}

	fmt.Printf("%s: %d rows evaluated, %d triggers, %d signals\n", summary.Series, summary.Rows, len(summary.Triggers), summary.Signals)
	os.Exit(0)
}
