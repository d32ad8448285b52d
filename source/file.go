package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/provision/cfg"
)

// readCloser closes the decompressor before the file underneath it
type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenFile opens a CSV file, decompressing ".zst" and ".gz" inputs on the fly
func OpenFile(path string, format cfg.SourceFormat, commentPrefix string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r, err := decompress(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return NewCSV(filepath.Base(path), r, format, commentPrefix), nil
}

func decompress(path string, f *os.File) (io.ReadCloser, error) {
	buffered := bufio.NewReaderSize(f, 256*1024)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
		}
		return &readCloser{
			Reader:  dec,
			closers: []func() error{func() error { dec.Close(); return nil }, f.Close},
		}, nil

	case ".gz":
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		return &readCloser{Reader: gz, closers: []func() error{gz.Close, f.Close}}, nil

	default:
		return &readCloser{Reader: buffered, closers: []func() error{f.Close}}, nil
	}
}
