// Package skiplog keeps a SQLite journal of input records that were skipped
// during a run, so operators can fix and resubmit them.
package skiplog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/maxpert/provision/common"
	"github.com/rs/zerolog/log"

	_ "github.com/mattn/go-sqlite3"
)

const tableName = "skipped_records"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS skipped_records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	profile    TEXT NOT NULL,
	origin     TEXT NOT NULL,
	line       INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_skipped_records_reason ON skipped_records(reason);
`

// Entry is one skipped record
type Entry struct {
	ID        int64  `db:"id" goqu:"skipinsert"`
	Profile   string `db:"profile"`
	Origin    string `db:"origin"`
	Line      int    `db:"line"`
	Reason    string `db:"reason"`
	Detail    string `db:"detail"`
	CreatedAt int64  `db:"created_at"` // Unix microseconds
}

// Journal appends skipped records to a SQLite database
type Journal struct {
	db  *sql.DB
	gdb *goqu.Database
	now func() time.Time
}

// Open opens (creating if needed) the journal at path
func Open(path string) (*Journal, error) {
	dsn := path
	if !strings.Contains(path, ":memory:") {
		if strings.Contains(dsn, "?") {
			dsn += "&_journal_mode=WAL&_busy_timeout=5000"
		} else {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open skip journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create skip journal schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("Skip journal opened")
	return &Journal{
		db:  db,
		gdb: goqu.New("sqlite3", db),
		now: time.Now,
	}, nil
}

// Record journals a skipped record. origin and line locate it in the input;
// an *common.InputParseError carrying its own location takes precedence.
func (j *Journal) Record(profile, origin string, line int, skipErr error) error {
	entry := Entry{
		Profile:   profile,
		Origin:    origin,
		Line:      line,
		Reason:    common.SkipReason(skipErr),
		Detail:    skipErr.Error(),
		CreatedAt: j.now().UnixMicro(),
	}

	var parseErr *common.InputParseError
	if errors.As(skipErr, &parseErr) {
		entry.Origin = parseErr.Origin
		entry.Line = parseErr.Line
		entry.Detail = parseErr.Reason
	}

	if _, err := j.gdb.Insert(tableName).Rows(entry).Executor().Exec(); err != nil {
		return fmt.Errorf("failed to journal skipped record: %w", err)
	}
	return nil
}

// Entries returns every journaled record in insertion order
func (j *Journal) Entries() ([]Entry, error) {
	var entries []Entry
	err := j.gdb.From(tableName).
		Order(goqu.C("id").Asc()).
		ScanStructs(&entries)
	if err != nil {
		return nil, fmt.Errorf("failed to read skip journal: %w", err)
	}
	return entries, nil
}

type reasonCount struct {
	Reason string `db:"reason"`
	Count  int64  `db:"count"`
}

// CountByReason returns the number of journaled records per skip reason
func (j *Journal) CountByReason(profile string) (map[string]int64, error) {
	var rows []reasonCount
	err := j.gdb.From(tableName).
		Select(goqu.C("reason"), goqu.COUNT("*").As("count")).
		Where(goqu.C("profile").Eq(profile)).
		GroupBy(goqu.C("reason")).
		ScanStructs(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to count skip journal: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Reason] = r.Count
	}
	return counts, nil
}

// Close closes the journal
func (j *Journal) Close() error {
	return j.db.Close()
}
