// Package source produces subscriber seeds from delimited files or from a
// synthetic numeric range.
package source

import "github.com/maxpert/provision/identity"

// Source is a finite, non-restartable sequence of seeds.
//
// Next returns io.EOF once exhausted. A malformed record is reported as a
// *common.InputParseError; the source stays usable and the caller may keep
// calling Next.
type Source interface {
	Next() (identity.Seed, error)
	Origin() string
	Close() error
}
