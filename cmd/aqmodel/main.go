// Command aqmodel trains, serves and queries the air-quality prediction
// models.
//
// Usage:
//
//	aqmodel train [-target pm25,no2] [-multi] [-days 180] [-bbox latMin,latMax,lonMin,lonMax]
//	aqmodel predict -target pm25 -lat 4.71 -lon -74.07 [-datetime 2025-05-05T10:00:00Z]
//	aqmodel build-features
//	aqmodel serve
//
// Settings come from the environment; see internal/config.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/air-quality-model/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int
}

var commands = []command{
	{"train", "train and save models for the configured targets", runTrain},
	{"predict", "predict a target at a point and time", runPredict},
	{"build-features", "rebuild the feature table from raw measurements", runBuildFeatures},
	{"serve", "serve predictions over HTTP and retrain on a schedule", runServe},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		return exitUsage
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "aqmodel: unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFail
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cmd.run(ctx, cfg, logger, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: aqmodel <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-15s %s\n", c.name, c.summary)
	}
}
