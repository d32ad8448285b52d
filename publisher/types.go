package publisher

// EventKind identifies what an Event announces
type EventKind string

const (
	EventTableFinalized EventKind = "table_finalized"
	EventTableFailed    EventKind = "table_failed"
	EventRunCompleted   EventKind = "run_completed"
)

// Event is a single completion notification
type Event struct {
	Kind      EventKind `msgpack:"kind"`
	Profile   string    `msgpack:"profile"`
	Keyspace  string    `msgpack:"keyspace"`
	Table     string    `msgpack:"table,omitempty"`    // Empty for run events
	Filename  string    `msgpack:"filename,omitempty"` // Relative to the profile directory
	Size      int64     `msgpack:"size,omitempty"`
	SHA256    string    `msgpack:"sha256,omitempty"`
	Rows      int64     `msgpack:"rows,omitempty"`
	Cells     int64     `msgpack:"cells,omitempty"`
	Processed int64     `msgpack:"processed,omitempty"` // Run events only
	Skipped   int64     `msgpack:"skipped,omitempty"`   // Run events only
	Failed    int       `msgpack:"failed,omitempty"`    // Failed tables, run events only
	Error     string    `msgpack:"error,omitempty"`
	NodeID    uint64    `msgpack:"node"`
	Timestamp int64     `msgpack:"ts"` // Unix microseconds
}

// Key returns the partition key of the event
func (e Event) Key() string {
	if e.Table == "" {
		return e.Profile
	}
	return e.Profile + "/" + e.Table
}

// Sink represents a destination for notifications (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends a message to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter determines whether a table event should be published
type Filter interface {
	Match(table string) bool
}
