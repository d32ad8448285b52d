package bulkwriter

import (
	"bytes"
	"sort"

	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/partition"
)

type bufferedCell struct {
	value     []byte
	timestamp int64
}

type bufferedRow struct {
	key     []byte
	columns map[string]bufferedCell
}

// RowBuffer accumulates cells for one table in arbitrary order. Rows are grouped
// by key as they arrive; ordering happens once, in Sorted.
// RowBuffer takes ownership of the slices passed to Add.
type RowBuffer struct {
	rows  map[string]*bufferedRow
	cells int
}

// NewRowBuffer creates an empty buffer
func NewRowBuffer() *RowBuffer {
	return &RowBuffer{rows: make(map[string]*bufferedRow)}
}

// Add records one cell. A later Add for the same (row key, column) replaces the
// earlier value.
func (b *RowBuffer) Add(rowKey, column, value []byte, timestamp int64) {
	row, ok := b.rows[string(rowKey)]
	if !ok {
		row = &bufferedRow{key: rowKey, columns: make(map[string]bufferedCell)}
		b.rows[string(rowKey)] = row
	}

	if _, exists := row.columns[string(column)]; !exists {
		b.cells++
	}
	row.columns[string(column)] = bufferedCell{value: value, timestamp: timestamp}
}

// Len returns the number of distinct rows
func (b *RowBuffer) Len() int {
	return len(b.rows)
}

// Cells returns the number of distinct (row, column) cells
func (b *RowBuffer) Cells() int {
	return b.cells
}

// Rows returns every buffered row with its columns sorted by name. Row order is unspecified.
func (b *RowBuffer) Rows() []common.Row {
	out := make([]common.Row, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, r.materialize())
	}
	return out
}

// SortedRow is a row paired with its placement token
type SortedRow struct {
	Token []byte
	common.Row
}

// Sorted returns every row ordered by (token, row key) under p, columns ascending
func (b *RowBuffer) Sorted(p partition.Partitioner) []SortedRow {
	out := make([]SortedRow, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, SortedRow{Token: p.Token(r.key), Row: r.materialize()})
	}

	sort.Slice(out, func(i, j int) bool {
		return partition.Compare(out[i].Token, out[i].Key, out[j].Token, out[j].Key) < 0
	})
	return out
}

// Reset drops all buffered state
func (b *RowBuffer) Reset() {
	b.rows = make(map[string]*bufferedRow)
	b.cells = 0
}

func (r *bufferedRow) materialize() common.Row {
	cells := make([]common.Cell, 0, len(r.columns))
	for name, c := range r.columns {
		cells = append(cells, common.Cell{Column: []byte(name), Value: c.value, Timestamp: c.timestamp})
	}
	sort.Slice(cells, func(i, j int) bool {
		return bytes.Compare(cells[i].Column, cells[j].Column) < 0
	})
	return common.Row{Key: r.key, Cells: cells}
}
