package hlc

import (
	"sync"
	"time"
)

// Clock implements a Hybrid Logical Clock that hands out store cell timestamps.
// Cell timestamps are microseconds since the epoch; the logical counter breaks ties
// when several timestamps are taken within the same microsecond.
type Clock struct {
	nodeID   uint64
	wallTime int64 // nanoseconds
	logical  int32
	source   func() time.Time
	mu       sync.Mutex
}

// Timestamp represents a point in time taken from a Clock
type Timestamp struct {
	WallTime int64
	Logical  int32
	NodeID   uint64
}

// NewClock creates a new HLC instance backed by the system clock
func NewClock(nodeID uint64) *Clock {
	return NewClockWithSource(nodeID, time.Now)
}

// NewClockWithSource creates a clock that reads physical time from source.
// Tests pin source to a fixed instant to make generated data reproducible.
func NewClockWithSource(nodeID uint64, source func() time.Time) *Clock {
	return &Clock{
		nodeID:   nodeID,
		wallTime: source().UnixNano(),
		source:   source,
	}
}

// Now generates a new timestamp. Successive timestamps from one clock are strictly
// increasing, including their microsecond projection.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := c.source().UnixNano()

	if physicalNow/1_000 > c.wallTime/1_000 {
		c.wallTime = physicalNow
		c.logical = 0
	} else {
		c.logical++
		// Keep the microsecond projection unique: the physical clock is stalled
		// (or pinned), so advance wall time by one microsecond
		c.wallTime += 1_000
	}

	return Timestamp{
		WallTime: c.wallTime,
		Logical:  c.logical,
		NodeID:   c.nodeID,
	}
}

// Physical returns the clock's physical reading without advancing it
func (c *Clock) Physical() time.Time {
	return c.source()
}

// Compare compares two timestamps
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func Compare(a, b Timestamp) int {
	if a.WallTime < b.WallTime {
		return -1
	}
	if a.WallTime > b.WallTime {
		return 1
	}

	if a.Logical < b.Logical {
		return -1
	}
	if a.Logical > b.Logical {
		return 1
	}

	if a.NodeID < b.NodeID {
		return -1
	}
	if a.NodeID > b.NodeID {
		return 1
	}

	return 0
}

// Less returns true if a happened before b
func Less(a, b Timestamp) bool {
	return Compare(a, b) < 0
}

// After returns true if a happened after b
func After(a, b Timestamp) bool {
	return Compare(a, b) > 0
}

// PhysicalTime returns the physical time component as time.Time
func (t Timestamp) PhysicalTime() time.Time {
	return time.Unix(0, t.WallTime)
}

// Micros returns the cell timestamp: microseconds since the Unix epoch
func (t Timestamp) Micros() int64 {
	return t.WallTime / 1_000
}

// String returns a human-readable representation
func (t Timestamp) String() string {
	return t.PhysicalTime().UTC().Format(time.RFC3339Nano)
}
