// Package common provides shared types used across the codebase.
// Fact is defined HERE so that fanout, bulkwriter and coordinator agree on one shape.
package common

// Fact is a single (table, row key, column, value, timestamp) unit produced by fan-out.
type Fact struct {
	Table     string
	RowKey    []byte
	Column    []byte
	Value     []byte
	Timestamp int64 // microseconds since epoch
}

// Cell is one column of a row as it is handed to a bulk-file sink
type Cell struct {
	Column    []byte
	Value     []byte
	Timestamp int64
}

// Row is the set of cells sharing one row key, columns ascending
type Row struct {
	Key   []byte
	Cells []Cell
}
