package bulkwriter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/provision/partition"
	"github.com/rs/zerolog/log"
)

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// Entry is one decoded cell read back from a bulk file
type Entry struct {
	Token     []byte
	RowKey    []byte
	Column    []byte
	Value     []byte
	Timestamp int64
}

// Scan reads a finished bulk file back in stored order. The file is ingested
// into a scratch pebble store, the same path a target node uses to load it, so a
// successful scan also proves the file is ingestible.
func Scan(path string) ([]Entry, error) {
	scratch, err := os.MkdirTemp("", "provision-scan-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	// Ingestion takes over the file, so hand it a copy
	staged := filepath.Join(scratch, "staged.sst")
	if err := copyFile(path, staged); err != nil {
		return nil, err
	}

	db, err := pebble.Open(filepath.Join(scratch, "db"), &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
		Logger:             &pebbleLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch store: %w", err)
	}
	defer db.Close()

	if err := db.Ingest([]string{staged}); err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	iter, err := db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		token, rowKey, column, err := DecodeKey(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("corrupt key %x: %w", iter.Key(), err)
		}
		ts, value, err := DecodeValue(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("corrupt value for key %x: %w", iter.Key(), err)
		}
		entries = append(entries, Entry{
			Token:     token,
			RowKey:    rowKey,
			Column:    column,
			Value:     value,
			Timestamp: ts,
		})
	}

	return entries, iter.Error()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// Verify checks that entries are strictly ascending in (token, row key, column)
// and that every token matches its row key under p
func Verify(entries []Entry, p partition.Partitioner) error {
	for i, e := range entries {
		if p != nil && !bytes.Equal(e.Token, p.Token(e.RowKey)) {
			return fmt.Errorf("entry %d: token %x does not match row key %q under %s", i, e.Token, e.RowKey, p.Name())
		}
		if i > 0 && !entryLess(entries[i-1], e) {
			return fmt.Errorf("entry %d: (%x, %q, %q) not after (%x, %q, %q)", i,
				e.Token, e.RowKey, e.Column,
				entries[i-1].Token, entries[i-1].RowKey, entries[i-1].Column)
		}
	}
	return nil
}

func entryLess(a, b Entry) bool {
	if c := partition.Compare(a.Token, a.RowKey, b.Token, b.RowKey); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Column, b.Column) < 0
}

// CountRows returns the number of distinct row keys in an ordered entry list
func CountRows(entries []Entry) int {
	rows := 0
	for i, e := range entries {
		if i == 0 || !bytes.Equal(e.RowKey, entries[i-1].RowKey) || !bytes.Equal(e.Token, entries[i-1].Token) {
			rows++
		}
	}
	return rows
}
