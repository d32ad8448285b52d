// Package coordinator drives one provisioning run: it owns a bulk writer per
// table of a profile, streams entities from a source through derivation and
// fan-out, and finalizes every table once the source is exhausted.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/maxpert/provision/bulkwriter"
	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/fanout"
	"github.com/maxpert/provision/identity"
	"github.com/maxpert/provision/manifest"
	"github.com/maxpert/provision/partition"
	"github.com/maxpert/provision/publisher"
	"github.com/maxpert/provision/source"
	"github.com/maxpert/provision/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// SkipJournal records skipped input records
type SkipJournal interface {
	Record(profile, origin string, line int, err error) error
}

// EventPublisher receives completion notifications
type EventPublisher interface {
	Publish(ctx context.Context, event publisher.Event) error
}

// Options configures a run
type Options struct {
	OutDir      string // Profile output lands in OutDir/<profile>
	Partitioner partition.Partitioner
	Sink        bulkwriter.SinkOptions
	NewSink     bulkwriter.SinkFactory // Defaults to the sstable sink
	Overwrite   bool

	Deriver *identity.Deriver
	Env     *fanout.Env

	// FinalizeParallelism > 1 finalizes up to that many tables at once
	FinalizeParallelism int

	NodeID   uint64
	Journal  SkipJournal    // Optional
	Notifier EventPublisher // Optional
}

// Summary is the outcome of a run
type Summary struct {
	Profile    string
	Processed  int64
	Skipped    map[string]int64 // By reason
	Duplicates int64
	Finalized  []bulkwriter.Result // In declared table order
	Failures   []TableFailure      // In declared table order
	Manifest   *manifest.Manifest
	Duration   time.Duration
}

// SkippedTotal returns the number of skipped records across all reasons
func (s *Summary) SkippedTotal() int64 {
	var n int64
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Progress is a live snapshot of a run, safe to read from other goroutines
type Progress struct {
	Profile   string `json:"profile"`
	Phase     string `json:"phase"`
	Processed int64  `json:"processed"`
	Skipped   int64  `json:"skipped"`
}

// Coordinator runs a single profile. Create one per run.
type Coordinator struct {
	profile *fanout.Profile
	opts    Options
	dir     string

	writers    []*bulkwriter.Writer
	byTable    map[string]*bulkwriter.Writer
	duplicates *DuplicateFilter
	skips      *xsync.MapOf[string, *xsync.Counter]

	processed  atomic.Int64
	skipped    atomic.Int64
	duplicated atomic.Int64
	phase      atomic.Value // string
}

// New validates opts and prepares a coordinator for profile
func New(profile *fanout.Profile, opts Options) (*Coordinator, error) {
	if profile == nil || len(profile.Tables) == 0 {
		return nil, fmt.Errorf("profile has no tables")
	}
	if opts.OutDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if opts.Partitioner == nil {
		return nil, fmt.Errorf("partitioner is required")
	}
	if opts.Deriver == nil {
		return nil, fmt.Errorf("identity deriver is required")
	}
	if opts.Env == nil || opts.Env.Rand == nil {
		return nil, fmt.Errorf("fan-out environment with a random source is required")
	}
	if opts.FinalizeParallelism < 1 {
		opts.FinalizeParallelism = 1
	}

	c := &Coordinator{
		profile:    profile,
		opts:       opts,
		dir:        filepath.Join(opts.OutDir, profile.Name),
		byTable:    make(map[string]*bulkwriter.Writer, len(profile.Tables)),
		duplicates: NewDuplicateFilter(),
		skips:      xsync.NewMapOf[string, *xsync.Counter](),
	}
	c.phase.Store("idle")
	return c, nil
}

// Dir returns the profile output directory
func (c *Coordinator) Dir() string {
	return c.dir
}

// Progress returns a snapshot for status reporting
func (c *Coordinator) Progress() Progress {
	return Progress{
		Profile:   c.profile.Name,
		Phase:     c.phase.Load().(string),
		Processed: c.processed.Load(),
		Skipped:   c.skipped.Load(),
	}
}

// Run is shorthand for New followed by (*Coordinator).Run
func Run(ctx context.Context, profile *fanout.Profile, src source.Source, opts Options) (*Summary, error) {
	c, err := New(profile, opts)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, src)
}

// Run streams src to completion and finalizes every table. Per-record
// failures are skipped and counted. A finalize failure of one table does not
// stop the others; the run then returns its Summary together with a
// *RunError. Cancelling ctx aborts the run and leaves no bulk files or
// manifest behind, also when the cancellation arrives while finalizing.
func (c *Coordinator) Run(ctx context.Context, src source.Source) (*Summary, error) {
	start := time.Now()

	if err := c.openWriters(); err != nil {
		return nil, err
	}

	log.Info().
		Str("profile", c.profile.Name).
		Str("keyspace", c.profile.Keyspace).
		Str("origin", src.Origin()).
		Strs("tables", c.profile.TableNames()).
		Str("partitioner", c.opts.Partitioner.Name()).
		Msg("Provisioning run started")

	c.phase.Store("ingesting")
	if err := c.ingest(ctx, src); err != nil {
		c.abortAll()
		c.phase.Store("aborted")
		return nil, err
	}

	c.phase.Store("finalizing")
	results, failures := c.finalizeAll()

	if err := ctx.Err(); err != nil {
		c.discard(results)
		c.phase.Store("aborted")
		return nil, fmt.Errorf("run interrupted while finalizing: %w", err)
	}

	summary := &Summary{
		Profile:    c.profile.Name,
		Processed:  c.processed.Load(),
		Skipped:    c.skipCounts(),
		Duplicates: c.duplicated.Load(),
		Failures:   failures,
	}

	m, described := c.writeManifest(results, summary)
	summary.Manifest = m
	summary.Finalized = described
	summary.Duration = time.Since(start)

	c.announce(ctx, m, summary)
	c.phase.Store("done")

	log.Info().
		Str("profile", c.profile.Name).
		Int64("processed", summary.Processed).
		Int64("skipped", summary.SkippedTotal()).
		Int64("duplicates", summary.Duplicates).
		Int("finalized", len(summary.Finalized)).
		Int("failed", len(summary.Failures)).
		Dur("duration", summary.Duration).
		Msg("Provisioning run finished")

	if len(summary.Failures) > 0 {
		return summary, &RunError{Failures: summary.Failures}
	}
	return summary, nil
}

// openWriters opens one writer per declared table. Nothing is left open on error.
func (c *Coordinator) openWriters() error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory %s: %w", c.dir, err)
	}

	for i := range c.profile.Tables {
		table := c.profile.Tables[i].Name
		w, err := bulkwriter.Open(table, bulkwriter.Options{
			Dir:         filepath.Join(c.dir, table),
			Keyspace:    c.profile.Keyspace,
			Partitioner: c.opts.Partitioner,
			Sink:        c.opts.Sink,
			Overwrite:   c.opts.Overwrite,
			NewSink:     c.opts.NewSink,
		})
		if err != nil {
			c.abortAll()
			return fmt.Errorf("profile %s: %w", c.profile.Name, err)
		}
		c.writers = append(c.writers, w)
		c.byTable[table] = w
	}
	return nil
}

func (c *Coordinator) ingest(ctx context.Context, src source.Source) error {
	for {
		if err := ctx.Err(); err != nil {
			log.Warn().
				Str("profile", c.profile.Name).
				Int64("processed", c.processed.Load()).
				Msg("Run interrupted, aborting all writers")
			return fmt.Errorf("run aborted: %w", err)
		}

		seed, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *common.InputParseError
			if errors.As(err, &parseErr) {
				c.skip(src.Origin(), parseErr.Line, err)
				continue
			}
			return fmt.Errorf("failed to read %s: %w", src.Origin(), err)
		}

		if err := c.process(seed); err != nil {
			if isPerRecord(err) {
				c.skip(seed.Origin, seed.Line, err)
				continue
			}
			return err
		}
	}
}

// process derives one entity and routes its facts. The entity is derived
// exactly once so every table sees the same identifier bytes.
func (c *Coordinator) process(seed identity.Seed) error {
	entity, err := c.opts.Deriver.Derive(seed)
	if err != nil {
		return err
	}

	if c.duplicates.Seen(entity.PublicID) {
		c.duplicated.Add(1)
		telemetry.DuplicateSeedsTotal.Inc()
		log.Warn().
			Str("origin", seed.Origin).
			Int("line", seed.Line).
			Str("public_id", entity.PublicID).
			Msg("Public identity probably seen before, rows will merge")
	}

	for _, f := range fanout.Fanout(entity, c.profile, c.opts.Env) {
		w, ok := c.byTable[f.Table]
		if !ok {
			return fmt.Errorf("fact for undeclared table %s in profile %s", f.Table, c.profile.Name)
		}
		if err := w.Add(f); err != nil {
			return fmt.Errorf("table %s: %w", f.Table, err)
		}
	}

	c.processed.Add(1)
	telemetry.RecordsTotal.With("processed").Inc()
	return nil
}

func isPerRecord(err error) bool {
	var parseErr *common.InputParseError
	var idErr *common.MalformedIdentifierError
	return errors.As(err, &parseErr) || errors.As(err, &idErr)
}

func (c *Coordinator) skip(origin string, line int, err error) {
	reason := common.SkipReason(err)

	counter, _ := c.skips.LoadOrCompute(reason, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	counter.Inc()
	c.skipped.Add(1)
	telemetry.RecordsTotal.With("skipped").Inc()
	telemetry.RecordsSkippedTotal.With(reason).Inc()

	log.Warn().
		Err(err).
		Str("origin", origin).
		Int("line", line).
		Str("reason", reason).
		Msg("Skipping record")

	if c.opts.Journal != nil {
		if jerr := c.opts.Journal.Record(c.profile.Name, origin, line, err); jerr != nil {
			log.Error().Err(jerr).Msg("Failed to journal skipped record")
		}
	}
}

func (c *Coordinator) skipCounts() map[string]int64 {
	counts := make(map[string]int64)
	c.skips.Range(func(reason string, counter *xsync.Counter) bool {
		counts[reason] = counter.Value()
		return true
	})
	return counts
}

func (c *Coordinator) abortAll() {
	for _, w := range c.writers {
		w.Abort()
	}
}

// discard removes the bulk files of an interrupted run together with any
// manifest, so the profile directory no longer claims to be loadable
func (c *Coordinator) discard(results []bulkwriter.Result) {
	paths := []string{filepath.Join(c.dir, manifest.FileName)}
	for _, res := range results {
		paths = append(paths, res.File.Path)
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove output of interrupted run")
		}
	}
	log.Warn().
		Str("profile", c.profile.Name).
		Int("discarded", len(results)).
		Msg("Run interrupted while finalizing, output discarded")
}

// writeManifest describes every finalized table and records the manifest.
// A table whose file cannot be described is moved to the failures.
func (c *Coordinator) writeManifest(results []bulkwriter.Result, summary *Summary) (*manifest.Manifest, []bulkwriter.Result) {
	m := &manifest.Manifest{
		Profile:     c.profile.Name,
		Keyspace:    c.profile.Keyspace,
		Partitioner: c.opts.Partitioner.Name(),
		NodeID:      c.opts.NodeID,
		Timestamp:   c.opts.Env.Timestamp,
		CreatedAt:   time.Now().UTC(),
	}

	described := make([]bulkwriter.Result, 0, len(results))
	for _, res := range results {
		info, err := manifest.Describe(c.dir, res.Table, res.File.Path, res.Rows, res.File.Cells)
		if err != nil {
			summary.Failures = append(summary.Failures, TableFailure{Profile: c.profile.Name, Table: res.Table, Err: err})
			continue
		}
		m.Tables = append(m.Tables, info)
		described = append(described, res)
	}
	c.sortFailures(summary.Failures)

	if err := manifest.Write(c.dir, m); err != nil {
		log.Error().Err(err).Str("profile", c.profile.Name).Msg("Failed to write run manifest")
		summary.Failures = append(summary.Failures, TableFailure{Profile: c.profile.Name, Table: manifest.FileName, Err: err})
	}
	return m, described
}

// sortFailures restores declared table order
func (c *Coordinator) sortFailures(failures []TableFailure) {
	order := make(map[string]int, len(c.profile.Tables))
	for i, t := range c.profile.Tables {
		order[t.Name] = i
	}
	sort.SliceStable(failures, func(i, j int) bool {
		return order[failures[i].Table] < order[failures[j].Table]
	})
}

// announce publishes one event per table then the run event
func (c *Coordinator) announce(ctx context.Context, m *manifest.Manifest, summary *Summary) {
	if c.opts.Notifier == nil {
		return
	}

	base := publisher.Event{
		Profile:  c.profile.Name,
		Keyspace: c.profile.Keyspace,
		NodeID:   c.opts.NodeID,
	}
	failed := make(map[string]error, len(summary.Failures))
	for _, f := range summary.Failures {
		failed[f.Table] = f.Err
	}

	for _, table := range c.profile.TableNames() {
		ev := base
		ev.Table = table
		ev.Timestamp = time.Now().UnixMicro()
		if err, ok := failed[table]; ok {
			ev.Kind = publisher.EventTableFailed
			ev.Error = err.Error()
		} else if info := m.GetTable(table); info != nil {
			ev.Kind = publisher.EventTableFinalized
			ev.Filename = info.Filename
			ev.Size = info.Size
			ev.SHA256 = info.SHA256
			ev.Rows = info.Rows
			ev.Cells = info.Cells
		} else {
			continue
		}
		c.publish(ctx, ev)
	}

	ev := base
	ev.Kind = publisher.EventRunCompleted
	ev.Processed = summary.Processed
	ev.Skipped = summary.SkippedTotal()
	ev.Failed = len(summary.Failures)
	ev.Timestamp = time.Now().UnixMicro()
	c.publish(ctx, ev)
}

func (c *Coordinator) publish(ctx context.Context, ev publisher.Event) {
	if err := c.opts.Notifier.Publish(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("profile", c.profile.Name).
			Str("kind", string(ev.Kind)).
			Str("table", ev.Table).
			Msg("Completion notification not delivered")
	}
}
