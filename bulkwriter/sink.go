package bulkwriter

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/objstorage/objstorageprovider"
	"github.com/cockroachdb/pebble/sstable"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/maxpert/provision/common"
	"github.com/rs/zerolog/log"
)

// Sink persists an ordered stream of rows as one immutable bulk file.
// Rows must arrive in strictly ascending (token, row key) order with columns ascending.
type Sink interface {
	// Append writes every cell of row
	Append(token []byte, row common.Row) error
	// Close seals the file and returns its final description
	Close() (FileInfo, error)
	// Abort discards everything written so far
	Abort() error
}

// FileInfo describes a finished bulk file
type FileInfo struct {
	Path        string
	Size        uint64
	Cells       int64
	SmallestKey []byte
	LargestKey  []byte
}

// SinkOptions controls the on-disk encoding of a bulk file
type SinkOptions struct {
	Compression     string // "snappy", "zstd" or "none"
	BlockSize       int
	BloomBitsPerKey int
}

// SinkFactory opens a sink that will produce the file at path
type SinkFactory func(path string, opts SinkOptions) (Sink, error)

// sstableSink writes a pebble sstable suitable for external ingestion. Data lands in
// a temporary file that is renamed into place only after a successful close.
type sstableSink struct {
	path    string
	tmpPath string
	w       *sstable.Writer
	cells   int64
	first   []byte
	last    []byte
	done    bool
}

// NewSSTableSink is the default SinkFactory
func NewSSTableSink(path string, opts SinkOptions) (Sink, error) {
	tmpPath := path + ".tmp"

	f, err := vfs.Default.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	wopts := sstable.WriterOptions{
		BlockSize:   opts.BlockSize,
		Compression: compressionFor(opts.Compression),
		TableFormat: sstable.TableFormatPebblev2,
	}
	if opts.BloomBitsPerKey > 0 {
		wopts.FilterPolicy = bloom.FilterPolicy(opts.BloomBitsPerKey)
		wopts.FilterType = sstable.TableFilter
	}

	return &sstableSink{
		path:    path,
		tmpPath: tmpPath,
		w:       sstable.NewWriter(objstorageprovider.NewFileWritable(f), wopts),
	}, nil
}

func compressionFor(name string) sstable.Compression {
	switch name {
	case "zstd":
		return sstable.ZstdCompression
	case "none":
		return sstable.NoCompression
	default:
		return sstable.SnappyCompression
	}
}

func (s *sstableSink) Append(token []byte, row common.Row) error {
	if s.done {
		return ErrWriterClosed
	}

	for _, c := range row.Cells {
		key := EncodeKey(token, row.Key, c.Column)
		if err := s.w.Set(key, EncodeValue(c.Timestamp, c.Value)); err != nil {
			return fmt.Errorf("failed to append row %q column %q: %w", row.Key, c.Column, err)
		}
		if s.first == nil {
			s.first = key
		}
		s.last = key
		s.cells++
	}
	return nil
}

func (s *sstableSink) Close() (FileInfo, error) {
	if s.done {
		return FileInfo{}, ErrWriterClosed
	}
	s.done = true

	if err := s.w.Close(); err != nil {
		s.removeTemp()
		return FileInfo{}, fmt.Errorf("failed to close sstable: %w", err)
	}

	meta, err := s.w.Metadata()
	if err != nil {
		s.removeTemp()
		return FileInfo{}, fmt.Errorf("failed to read sstable metadata: %w", err)
	}

	if err := vfs.Default.Rename(s.tmpPath, s.path); err != nil {
		s.removeTemp()
		return FileInfo{}, fmt.Errorf("failed to move %s into place: %w", s.tmpPath, err)
	}

	return FileInfo{
		Path:        s.path,
		Size:        meta.Size,
		Cells:       s.cells,
		SmallestKey: s.first,
		LargestKey:  s.last,
	}, nil
}

func (s *sstableSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true

	// The writer may already be in an error state; its close error is irrelevant here
	_ = s.w.Close()
	return s.removeTemp()
}

func (s *sstableSink) removeTemp() error {
	if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", s.tmpPath).Msg("Failed to remove partial bulk file")
		return err
	}
	return nil
}
