// Package bulkwriter turns unordered per-table cells into sorted, immutable bulk files.
//
// A Writer buffers everything for one table in memory (RowBuffer), then on Finalize
// orders rows by partitioner token, row key and column name, and streams them into
// a Sink. The default sink writes a pebble sstable.
package bulkwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/partition"
	"github.com/maxpert/provision/telemetry"
	"github.com/rs/zerolog/log"
)

// Options configures one table writer
type Options struct {
	Dir         string // Table directory; created on Open
	Keyspace    string
	Partitioner partition.Partitioner
	Sink        SinkOptions
	Overwrite   bool
	NewSink     SinkFactory // Defaults to NewSSTableSink
}

type writerState int

const (
	stateOpen writerState = iota
	stateFinalized
	stateAborted
)

// Writer is the sorted bulk writer for a single table. Not safe for concurrent use.
type Writer struct {
	table  string
	path   string
	opts   Options
	buffer *RowBuffer
	state  writerState
}

// Result describes a finalized table
type Result struct {
	Table    string
	File     FileInfo
	Rows     int64
	Duration time.Duration
}

// FileName returns the bulk file name for a table
func FileName(keyspace, table string) string {
	return fmt.Sprintf("%s-%s.sst", keyspace, table)
}

// Open prepares a writer for table. The output directory is created immediately;
// the bulk file itself only appears on a successful Finalize.
func Open(table string, opts Options) (*Writer, error) {
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if opts.Partitioner == nil {
		return nil, fmt.Errorf("partitioner is required for table %s", table)
	}
	if opts.NewSink == nil {
		opts.NewSink = NewSSTableSink
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create table directory %s: %w", opts.Dir, err)
	}

	path := filepath.Join(opts.Dir, FileName(opts.Keyspace, table))
	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("output for table %s already exists: %s", table, path)
		}
	}

	return &Writer{
		table:  table,
		path:   path,
		opts:   opts,
		buffer: NewRowBuffer(),
	}, nil
}

// Table returns the table this writer produces
func (w *Writer) Table() string {
	return w.table
}

// Path returns where the bulk file will be written
func (w *Writer) Path() string {
	return w.path
}

// Add buffers a single fact. The fact must belong to this writer's table.
func (w *Writer) Add(f common.Fact) error {
	if w.state != stateOpen {
		return ErrWriterClosed
	}
	if f.Table != w.table {
		return fmt.Errorf("fact for table %s routed to writer for %s", f.Table, w.table)
	}

	w.buffer.Add(f.RowKey, f.Column, f.Value, f.Timestamp)
	telemetry.FactsBufferedTotal.With(w.table).Inc()
	return nil
}

// Write buffers every cell of row
func (w *Writer) Write(row common.Row) error {
	if w.state != stateOpen {
		return ErrWriterClosed
	}

	for _, c := range row.Cells {
		w.buffer.Add(row.Key, c.Column, c.Value, c.Timestamp)
	}
	telemetry.FactsBufferedTotal.With(w.table).Add(float64(len(row.Cells)))
	return nil
}

// Buffered returns the number of distinct rows waiting for Finalize
func (w *Writer) Buffered() int {
	return w.buffer.Len()
}

// Finalize sorts everything buffered and writes it to one bulk file, then
// releases the writer. On failure no file is left at Path, not even one
// written by an earlier run.
func (w *Writer) Finalize() (Result, error) {
	if w.state != stateOpen {
		return Result{}, ErrWriterClosed
	}
	w.state = stateFinalized

	start := time.Now()
	rows := w.buffer.Sorted(w.opts.Partitioner)
	w.buffer.Reset()

	sink, err := w.opts.NewSink(w.path, w.opts.Sink)
	if err != nil {
		return Result{}, w.flushFailed(err)
	}

	var prevToken, prevKey []byte
	for i, row := range rows {
		if i > 0 && partition.Compare(prevToken, prevKey, row.Token, row.Key) >= 0 {
			sink.Abort()
			return Result{}, w.flushFailed(fmt.Errorf("row %q out of order after %q", row.Key, prevKey))
		}
		if err := sink.Append(row.Token, row.Row); err != nil {
			sink.Abort()
			return Result{}, w.flushFailed(err)
		}
		prevToken, prevKey = row.Token, row.Key
	}

	info, err := sink.Close()
	if err != nil {
		return Result{}, w.flushFailed(err)
	}

	elapsed := time.Since(start)
	telemetry.FlushDurationSeconds.With(w.table).Observe(elapsed.Seconds())
	telemetry.RowsWrittenTotal.With(w.table).Add(float64(len(rows)))

	log.Debug().
		Str("table", w.table).
		Int("rows", len(rows)).
		Int64("cells", info.Cells).
		Str("path", info.Path).
		Dur("duration", elapsed).
		Msg("Bulk file written")

	return Result{
		Table:    w.table,
		File:     info,
		Rows:     int64(len(rows)),
		Duration: elapsed,
	}, nil
}

// flushFailed removes whatever sits at the output path, including a bulk file
// left by an earlier run when overwriting, and wraps err as a FlushIOError
func (w *Writer) flushFailed(err error) error {
	if rmErr := os.Remove(w.path); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Warn().Err(rmErr).Str("table", w.table).Str("path", w.path).Msg("Failed to remove bulk file after flush error")
	}
	return &FlushIOError{Table: w.table, Path: w.path, Err: err}
}

// Abort discards all buffered state without producing output
func (w *Writer) Abort() {
	if w.state != stateOpen {
		return
	}
	w.state = stateAborted
	w.buffer.Reset()
	log.Debug().Str("table", w.table).Msg("Writer aborted")
}
