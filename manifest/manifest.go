// Package manifest records what a provisioning run produced so the output can
// be checked before it is handed to the store for bulk loading.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maxpert/provision/encoding"
)

// FileName is the manifest's name inside a profile output directory
const FileName = "MANIFEST"

// FormatVersion is bumped whenever the manifest layout changes
const FormatVersion = 1

// TableInfo describes the bulk file of one table
type TableInfo struct {
	Table    string `msgpack:"table"`
	Filename string `msgpack:"filename"` // Relative to the profile directory
	Size     int64  `msgpack:"size"`
	SHA256   string `msgpack:"sha256"`
	Rows     int64  `msgpack:"rows"`
	Cells    int64  `msgpack:"cells"`
}

// Manifest describes every table finalized by one run of a profile
type Manifest struct {
	Version     int         `msgpack:"version"`
	Profile     string      `msgpack:"profile"`
	Keyspace    string      `msgpack:"keyspace"`
	Partitioner string      `msgpack:"partitioner"`
	NodeID      uint64      `msgpack:"node_id"`
	Timestamp   int64       `msgpack:"timestamp"` // Cell timestamp shared by the run, microseconds
	CreatedAt   time.Time   `msgpack:"created_at"`
	Tables      []TableInfo `msgpack:"tables"`
}

// TableNames returns the tables in the manifest, in finalize order
func (m *Manifest) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for _, t := range m.Tables {
		names = append(names, t.Table)
	}
	return names
}

// GetTable returns the entry for table, or nil if not found
func (m *Manifest) GetTable(table string) *TableInfo {
	for i := range m.Tables {
		if m.Tables[i].Table == table {
			return &m.Tables[i]
		}
	}
	return nil
}

// Describe builds the manifest entry for a finished bulk file at path, which
// must live under profileDir
func Describe(profileDir, table, path string, rows, cells int64) (TableInfo, error) {
	rel, err := filepath.Rel(profileDir, path)
	if err != nil {
		return TableInfo{}, fmt.Errorf("bulk file %s is not under %s: %w", path, profileDir, err)
	}
	if _, err := SanitizeFilename(rel); err != nil {
		return TableInfo{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return TableInfo{}, err
	}
	sum, err := CalculateFileSHA256(path)
	if err != nil {
		return TableInfo{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return TableInfo{
		Table:    table,
		Filename: filepath.ToSlash(rel),
		Size:     info.Size(),
		SHA256:   sum,
		Rows:     rows,
		Cells:    cells,
	}, nil
}

// Write stores m in dir, replacing any previous manifest atomically
func Write(dir string, m *Manifest) error {
	if m.Version == 0 {
		m.Version = FormatVersion
	}

	path := filepath.Join(dir, FileName)
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}

	if err := encoding.Write(tmp, m); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to install manifest: %w", err)
	}
	return nil
}

// Read loads the manifest stored in dir
func Read(dir string) (*Manifest, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Manifest
	if err := encoding.Read(f, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.Version > FormatVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", m.Version, FormatVersion)
	}
	return &m, nil
}
