package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/maxpert/provision/bulkwriter"
	"github.com/maxpert/provision/cfg"
	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/coordinator"
	"github.com/maxpert/provision/fanout"
	"github.com/maxpert/provision/hlc"
	"github.com/maxpert/provision/id"
	"github.com/maxpert/provision/identity"
	"github.com/maxpert/provision/manifest"
	"github.com/maxpert/provision/partition"
	"github.com/maxpert/provision/publisher"
	"github.com/maxpert/provision/skiplog"
	"github.com/maxpert/provision/source"
	"github.com/maxpert/provision/telemetry"
	"github.com/rs/zerolog/log"
)

const emitPlaintextSecretArg = "emit-plaintext-secret"

// runArgs is a parsed run command line
type runArgs struct {
	Profile             *fanout.Profile
	Inputs              []string // One CSV path or a four-part range
	Format              cfg.SourceFormat
	Overwrite           bool
	Parallelism         int
	EmitPlaintextSecret bool
}

func parseRunArgs(args []string) (*runArgs, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	ra := &runArgs{}
	var format string
	fs.StringVar(&format, "format", "", "Input format: auto|flat|prepared|legacy")
	fs.BoolVar(&ra.Overwrite, "overwrite", false, "Replace existing bulk files")
	fs.IntVar(&ra.Parallelism, "parallelism", 0, "Tables finalized concurrently")
	fs.BoolVar(&ra.EmitPlaintextSecret, emitPlaintextSecretArg, false, "Store the plaintext secret")

	if err := fs.Parse(args); err != nil {
		return nil, &common.UsageError{Msg: err.Error()}
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, &common.UsageError{Msg: "missing profile name"}
	}

	profile, err := fanout.Lookup(rest[0])
	if err != nil {
		return nil, err
	}
	ra.Profile = profile
	rest = rest[1:]

	if n := len(rest); n > 0 && rest[n-1] == emitPlaintextSecretArg {
		ra.EmitPlaintextSecret = true
		rest = rest[:n-1]
	}
	if len(rest) != 1 && len(rest) != 4 {
		return nil, &common.UsageError{Msg: "expected <csv-file> or <start> <end> <domain> <secret>"}
	}
	ra.Inputs = rest

	switch f := cfg.SourceFormat(format); f {
	case "":
	case cfg.SourceAuto, cfg.SourceFlat, cfg.SourcePrepared, cfg.SourceLegacy:
		ra.Format = f
	default:
		return nil, &common.UsageError{Msg: fmt.Sprintf("invalid input format %q", format)}
	}

	if ra.Parallelism < 0 {
		return nil, &common.UsageError{Msg: "parallelism must be >= 1"}
	}
	return ra, nil
}

// openSource picks the CSV or range adapter from the positional arguments
func openSource(ra *runArgs) (source.Source, error) {
	if len(ra.Inputs) == 4 {
		return source.ParseRange(ra.Inputs)
	}

	format := ra.Format
	if format == "" {
		format = cfg.Config.Source.Format
	}
	return source.OpenFile(ra.Inputs[0], format, cfg.Config.Source.CommentPrefix)
}

func callSettings(c cfg.CallsConfiguration) fanout.CallSettings {
	return fanout.CallSettings{
		Count:               c.Count,
		Window:              time.Duration(c.WindowHours) * time.Hour,
		AnsweredProbability: c.AnsweredProbability,
		OutgoingProbability: c.OutgoingProbability,
		MaxJitter:           time.Duration(c.MaxJitterSeconds) * time.Second,
	}
}

func runProvision(ctx context.Context, args []string, stdout io.Writer) error {
	ra, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	p, err := partition.Get(cfg.Config.Writer.Partitioner)
	if err != nil {
		return &common.UsageError{Msg: err.Error()}
	}

	src, err := openSource(ra)
	if err != nil {
		return err
	}
	defer src.Close()

	seed := cfg.Config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	deriver, err := identity.NewDeriver(id.NewRandomGenerator(rng), cfg.Config.Identity.IFCCacheSize)
	if err != nil {
		return err
	}

	now := hlc.NewClock(cfg.Config.NodeID).Now()
	env := &fanout.Env{
		Timestamp:           now.Micros(),
		Now:                 now.PhysicalTime(),
		Rand:                rng,
		Calls:               callSettings(cfg.Config.Calls),
		EmitPlaintextSecret: cfg.Config.EmitPlaintextSecret || ra.EmitPlaintextSecret,
	}

	parallelism := cfg.Config.Writer.FinalizeParallelism
	if ra.Parallelism > 0 {
		parallelism = ra.Parallelism
	}

	opts := coordinator.Options{
		OutDir:      cfg.Config.OutDir,
		Partitioner: p,
		Sink: bulkwriter.SinkOptions{
			Compression:     cfg.Config.Writer.Compression,
			BlockSize:       cfg.Config.Writer.BlockSize(),
			BloomBitsPerKey: cfg.Config.Writer.BloomBitsPerKey,
		},
		Overwrite:           cfg.Config.Writer.Overwrite || ra.Overwrite,
		Deriver:             deriver,
		Env:                 env,
		FinalizeParallelism: parallelism,
		NodeID:              cfg.Config.NodeID,
	}

	if err := os.MkdirAll(cfg.Config.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if cfg.Config.SkipJournal.Enabled {
		journal, err := skiplog.Open(cfg.SkipJournalPath())
		if err != nil {
			return err
		}
		defer journal.Close()
		opts.Journal = journal
	}

	notifier, err := publisher.New(cfg.Config.Notify)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
		opts.Notifier = notifier
	}

	c, err := coordinator.New(ra.Profile, opts)
	if err != nil {
		return err
	}

	if addr := cfg.Config.Prometheus.Address; addr != "" {
		srv := telemetry.Serve(addr, func() any { return c.Progress() })
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	log.Debug().
		Int64("seed", seed).
		Str("cell_timestamp", now.String()).
		Msg("Run parameters")

	summary, runErr := c.Run(ctx, src)
	if summary != nil {
		printSummary(stdout, summary)
	}

	if err := telemetry.WriteTextfile(cfg.Config.Prometheus.Textfile); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics textfile")
	}
	return runErr
}

func printSummary(w io.Writer, s *coordinator.Summary) {
	fmt.Fprintf(w, "Profile:    %s\n", s.Profile)
	fmt.Fprintf(w, "Processed:  %d\n", s.Processed)
	fmt.Fprintf(w, "Skipped:    %d\n", s.SkippedTotal())

	reasons := make([]string, 0, len(s.Skipped))
	for reason := range s.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %-22s %d\n", reason, s.Skipped[reason])
	}
	if s.Duplicates > 0 {
		fmt.Fprintf(w, "Duplicates: %d\n", s.Duplicates)
	}

	fmt.Fprintf(w, "Finalized:  %d table(s)\n", len(s.Finalized))
	for _, res := range s.Finalized {
		fmt.Fprintf(w, "  %-28s %8d rows  %s\n", res.Table, res.Rows, res.File.Path)
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "Failed:     %d table(s)\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %-28s %v\n", f.Table, f.Err)
		}
	}
	fmt.Fprintf(w, "Duration:   %s\n", s.Duration.Round(time.Millisecond))
}

func runVerify(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return &common.UsageError{Msg: "verify needs exactly one profile output directory"}
	}

	m, err := manifest.Verify(args[0])
	if err != nil {
		return fmt.Errorf("verification of %s failed: %w", args[0], err)
	}

	fmt.Fprintf(stdout, "OK %s (%s, partitioner %s)\n", m.Profile, m.Keyspace, m.Partitioner)
	for _, t := range m.Tables {
		fmt.Fprintf(stdout, "  %-28s %8d rows %10d cells  %s\n", t.Table, t.Rows, t.Cells, t.SHA256[:16])
	}
	return nil
}

func runProfiles(args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return &common.UsageError{Msg: "profiles takes no arguments"}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tKEYSPACE\tTABLES\tDESCRIPTION")
	for _, name := range fanout.Names() {
		p, err := fanout.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Keyspace, strings.Join(p.TableNames(), ","), p.Description)
	}
	return tw.Flush()
}
