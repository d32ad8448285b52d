package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/maxpert/provision/cfg"
	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/fanout"
	"github.com/maxpert/provision/telemetry"

	_ "github.com/maxpert/provision/publisher/sink"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "1.0.0"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()
	os.Exit(execute(flag.Args(), os.Stdout, os.Stderr))
}

// execute dispatches a command line (global flags already parsed) and
// returns the process exit code
func execute(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "provision version %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	case "profiles":
		err = runProfiles(rest, stdout)
	case "run":
		err = withRuntime(stderr, func(ctx context.Context) error {
			return runProvision(ctx, rest, stdout)
		})
	case "verify":
		err = withRuntime(stderr, func(ctx context.Context) error {
			return runVerify(rest, stdout)
		})
	default:
		// Short form: provision <profile> (<csv-file> | <start> <end> <domain> <secret>) [emit-plaintext-secret]
		if _, lookupErr := fanout.Lookup(cmd); lookupErr == nil {
			err = withRuntime(stderr, func(ctx context.Context) error {
				return runProvision(ctx, args, stdout)
			})
			break
		}
		err = &common.UsageError{Msg: fmt.Sprintf("unknown command or profile: %s", cmd)}
	}

	return report(err, stderr)
}

// report prints err and maps it to an exit code
func report(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}

	var usage *common.UsageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Error: %s\n\n", usage.Msg)
		printUsage(stderr)
		return exitUsage
	}

	log.Error().Err(err).Msg("Provisioning failed")
	return exitFailure
}

// withRuntime loads configuration, sets up logging and telemetry, and runs
// fn with a context cancelled on SIGINT or SIGTERM
func withRuntime(stderr io.Writer, fn func(ctx context.Context) error) error {
	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return &common.UsageError{Msg: fmt.Sprintf("invalid configuration: %v", err)}
	}

	setupLogging(stderr)
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx)
}

func setupLogging(stderr io.Writer) {
	var writer io.Writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = stderr
	})
	if cfg.Config.Logging.Format == "json" {
		writer = stderr
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `provision - offline bulk-file generator for Clearwater subscriber stores

Usage:
  provision [global options] <command> [options] [arguments]
  provision [global options] <profile> (<csv-file> | <start> <end> <domain> <secret>) [emit-plaintext-secret]

Commands:
  run       Generate bulk files for a profile
  verify    Check a profile output directory against its manifest
  profiles  List profiles and their tables
  version   Print version
  help      Show this help

Global Options:
  -config       Path to configuration file (default: provision.toml)
  -out          Output directory (overrides config)
  -partitioner  random|byteordered|xxhash (overrides config)
  -seed         Random seed for reproducible ids and call lists
  -verbose      Enable debug logging

Run Options:
  -format                 auto|flat|prepared|legacy (overrides config)
  -overwrite              Replace bulk files left by an earlier run
  -parallelism            Tables finalized concurrently (overrides config)
  -emit-plaintext-secret  Store the plaintext secret in homestead-prov

Examples:
  provision run homestead-cache users.csv
  provision -seed 7 run memento 1000 1999 example.com secret
  provision homestead-prov users.csv.zst emit-plaintext-secret
  provision verify provision-out/homestead-prov`)
}
