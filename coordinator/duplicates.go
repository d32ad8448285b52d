package coordinator

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	cuckoo "github.com/linvon/cuckoo-filter"
)

const (
	// capacity = bucketSize × numBuckets = 4 × 1<<20 ≈ 4M identities
	cuckooBucketSize      = 4
	cuckooFingerprintSize = 32
	cuckooNumBuckets      = 1 << 20
)

// DuplicateFilter flags public identities that were probably seen earlier in
// the same input. A hit may be a false positive; a miss is definite.
// Not safe for concurrent use.
type DuplicateFilter struct {
	filter *cuckoo.Filter
	buf    []byte
	full   bool
}

// NewDuplicateFilter creates an empty filter
func NewDuplicateFilter() *DuplicateFilter {
	return &DuplicateFilter{
		filter: cuckoo.NewFilter(cuckooBucketSize, cuckooFingerprintSize,
			cuckooNumBuckets, cuckoo.TableTypePacked),
		buf: make([]byte, 8),
	}
}

// Seen reports whether publicID was probably seen before and records it
func (d *DuplicateFilter) Seen(publicID string) bool {
	binary.LittleEndian.PutUint64(d.buf, xxhash.Sum64String(publicID))
	if d.filter.Contain(d.buf) {
		return true
	}
	if !d.full && !d.filter.Add(d.buf) {
		// Filter is saturated; stop recording but keep answering lookups
		d.full = true
	}
	return false
}

// Size returns the number of recorded identities
func (d *DuplicateFilter) Size() uint {
	return d.filter.Size()
}
