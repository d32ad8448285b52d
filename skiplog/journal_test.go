package skiplog

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxpert/provision/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "skipped.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	j.now = func() time.Time { return time.Unix(1700000000, 0) }
	return j
}

func TestJournal_RecordAndRead(t *testing.T) {
	j := openTestJournal(t)

	parseErr := &common.InputParseError{Origin: "users.csv", Line: 12, Reason: "expected at least 4 columns, got 2"}
	require.NoError(t, j.Record("homestead-prov", "ignored", 0, parseErr))

	idErr := fmt.Errorf("derive: %w", &common.MalformedIdentifierError{Field: "irs_uuid", Value: "nope"})
	require.NoError(t, j.Record("homestead-prov", "users.csv", 13, idErr))

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "users.csv", entries[0].Origin)
	assert.Equal(t, 12, entries[0].Line)
	assert.Equal(t, "input_parse", entries[0].Reason)
	assert.Equal(t, "expected at least 4 columns, got 2", entries[0].Detail)
	assert.Equal(t, int64(1700000000000000), entries[0].CreatedAt)

	assert.Equal(t, 13, entries[1].Line)
	assert.Equal(t, "malformed_identifier", entries[1].Reason)
	assert.Contains(t, entries[1].Detail, "irs_uuid")
	assert.Greater(t, entries[1].ID, entries[0].ID)
}

func TestJournal_CountByReason(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record("homer", "a.csv", i, &common.InputParseError{Origin: "a.csv", Line: i, Reason: "bad"}))
	}
	require.NoError(t, j.Record("homer", "a.csv", 9, errors.New("boom")))
	require.NoError(t, j.Record("memento", "a.csv", 10, &common.InputParseError{Origin: "a.csv", Line: 10, Reason: "bad"}))

	counts, err := j.CountByReason("homer")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"input_parse": 3, "other": 1}, counts)
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skipped.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record("homer", "a.csv", 1, errors.New("x")))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
