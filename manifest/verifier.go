package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maxpert/provision/bulkwriter"
	"github.com/maxpert/provision/partition"
	"github.com/rs/zerolog/log"
)

// SanitizeFilename validates a manifest file name. Only "<table>/<name>.sst"
// relative paths are accepted, so a tampered manifest cannot point outside
// the profile directory.
func SanitizeFilename(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("empty filename")
	}
	if filepath.IsAbs(filename) {
		return "", fmt.Errorf("absolute path not allowed: %s", filename)
	}

	cleaned := filepath.Clean(filepath.FromSlash(filename))
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("path traversal not allowed: %s", filename)
		}
	}

	parts := strings.Split(cleaned, string(filepath.Separator))
	if len(parts) != 2 || !strings.HasSuffix(parts[1], ".sst") {
		return "", fmt.Errorf("invalid bulk file name pattern: %s", filename)
	}
	return cleaned, nil
}

// CalculateFileSHA256 computes SHA256 checksum of a file
func CalculateFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyIntegrity checks existence, size and SHA256 of every table file
func VerifyIntegrity(dir string, m *Manifest) error {
	for _, expected := range m.Tables {
		if err := verifyFile(dir, expected); err != nil {
			return err
		}
	}
	return nil
}

func verifyFile(dir string, expected TableInfo) error {
	name, err := SanitizeFilename(expected.Filename)
	if err != nil {
		return err
	}
	filePath := filepath.Join(dir, name)

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("missing file %s: %w", expected.Filename, err)
	}
	if info.Size() != expected.Size {
		return fmt.Errorf("size mismatch for %s: expected %d, got %d",
			expected.Filename, expected.Size, info.Size())
	}

	actualHash, err := CalculateFileSHA256(filePath)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", expected.Filename, err)
	}
	if actualHash != expected.SHA256 {
		return fmt.Errorf("SHA256 mismatch for %s: expected %s, got %s",
			expected.Filename, expected.SHA256, actualHash)
	}

	log.Debug().
		Str("file", expected.Filename).
		Str("sha256", actualHash[:16]+"...").
		Msg("Verified bulk file integrity")
	return nil
}

// VerifyContents decodes every table file and checks that its cells are in
// strictly ascending order under the run's partitioner and that row and cell
// counts match the manifest
func VerifyContents(dir string, m *Manifest) error {
	p, err := partition.Get(m.Partitioner)
	if err != nil {
		return err
	}

	for _, expected := range m.Tables {
		name, err := SanitizeFilename(expected.Filename)
		if err != nil {
			return err
		}

		entries, err := bulkwriter.Scan(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", expected.Filename, err)
		}
		if err := bulkwriter.Verify(entries, p); err != nil {
			return fmt.Errorf("table %s: %w", expected.Table, err)
		}
		if int64(len(entries)) != expected.Cells {
			return fmt.Errorf("cell count mismatch for %s: expected %d, got %d", expected.Table, expected.Cells, len(entries))
		}
		if rows := int64(bulkwriter.CountRows(entries)); rows != expected.Rows {
			return fmt.Errorf("row count mismatch for %s: expected %d, got %d", expected.Table, expected.Rows, rows)
		}

		log.Debug().
			Str("table", expected.Table).
			Int("cells", len(entries)).
			Msg("Verified bulk file ordering")
	}
	return nil
}

// Verify runs both integrity and content checks against the manifest in dir
func Verify(dir string) (*Manifest, error) {
	m, err := Read(dir)
	if err != nil {
		return nil, err
	}
	if err := VerifyIntegrity(dir, m); err != nil {
		return m, err
	}
	if err := VerifyContents(dir, m); err != nil {
		return m, err
	}
	return m, nil
}
