package source

import (
	"fmt"
	"io"
	"strconv"

	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/identity"
)

const rangeOrigin = "range"

// RangeSource synthesizes one subscriber per number in [start, end]:
// public "sip:<n>@<domain>", private "<n>@<domain>", realm <domain>, all
// sharing one secret.
type RangeSource struct {
	next   uint64
	end    uint64
	done   bool
	domain string
	secret string
}

// NewRange creates a range source. start must not exceed end.
func NewRange(start, end uint64, domain, secret string) (*RangeSource, error) {
	if start > end {
		return nil, &common.UsageError{Msg: fmt.Sprintf("range start %d is after end %d", start, end)}
	}
	if domain == "" {
		return nil, &common.UsageError{Msg: "range domain is required"}
	}
	return &RangeSource{next: start, end: end, domain: domain, secret: secret}, nil
}

// ParseRange builds a range source from the command line form
// <start> <end> <domain> <secret>
func ParseRange(args []string) (*RangeSource, error) {
	if len(args) != 4 {
		return nil, &common.UsageError{Msg: fmt.Sprintf("range needs <start> <end> <domain> <secret>, got %d arguments", len(args))}
	}
	start, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return nil, &common.UsageError{Msg: fmt.Sprintf("invalid range start %q", args[0])}
	}
	end, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return nil, &common.UsageError{Msg: fmt.Sprintf("invalid range end %q", args[1])}
	}
	return NewRange(start, end, args[2], args[3])
}

// Origin returns "range"
func (s *RangeSource) Origin() string {
	return rangeOrigin
}

// Len returns how many seeds remain
func (s *RangeSource) Len() uint64 {
	if s.done {
		return 0
	}
	return s.end - s.next + 1
}

// Next returns the seed for the next number
func (s *RangeSource) Next() (identity.Seed, error) {
	if s.done {
		return identity.Seed{}, io.EOF
	}

	n := strconv.FormatUint(s.next, 10)
	seed := identity.Seed{
		Origin:    rangeOrigin,
		PublicID:  "sip:" + n + "@" + s.domain,
		PrivateID: n + "@" + s.domain,
		Realm:     s.domain,
		Secret:    s.secret,
	}

	if s.next == s.end {
		s.done = true
	} else {
		s.next++
	}
	return seed, nil
}

// Close is a no-op
func (s *RangeSource) Close() error {
	return nil
}
