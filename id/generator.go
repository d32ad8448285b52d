package id

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/maxpert/provision/common"
)

// Generator provides random 128-bit identifiers for cross-linking denormalized rows.
type Generator interface {
	NewUUID() (uuid.UUID, error)
}

// RandomGenerator draws version 4 UUIDs from a caller supplied byte source.
// Passing a seeded *rand.Rand makes the sequence reproducible.
// Not safe for concurrent use unless the reader is.
type RandomGenerator struct {
	r io.Reader
}

// NewRandomGenerator creates a generator reading entropy from r
func NewRandomGenerator(r io.Reader) *RandomGenerator {
	return &RandomGenerator{r: r}
}

// NewUUID generates one random UUID
func (g *RandomGenerator) NewUUID() (uuid.UUID, error) {
	return uuid.NewRandomFromReader(g.r)
}

// NewPair generates two mutually distinct UUIDs: a registration-set id and a
// service-profile id.
func NewPair(g Generator) (irs uuid.UUID, sp uuid.UUID, err error) {
	irs, err = g.NewUUID()
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("failed to generate registration set id: %w", err)
	}

	for {
		sp, err = g.NewUUID()
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("failed to generate service profile id: %w", err)
		}
		if sp != irs {
			return irs, sp, nil
		}
	}
}

// canonicalLen is the length of the 8-4-4-4-12 textual form
const canonicalLen = 36

// Parse parses the canonical textual UUID form. Anything else fails with
// MalformedIdentifierError naming field.
func Parse(field, text string) (uuid.UUID, error) {
	if len(text) != canonicalLen {
		return uuid.Nil, &common.MalformedIdentifierError{
			Field: field,
			Value: text,
			Err:   fmt.Errorf("expected %d characters, got %d", canonicalLen, len(text)),
		}
	}

	u, err := uuid.Parse(text)
	if err != nil {
		return uuid.Nil, &common.MalformedIdentifierError{Field: field, Value: text, Err: err}
	}
	return u, nil
}

// Bytes returns the 16-byte layout the store uses for native UUID columns:
// time-low, time-mid, time-high-and-version, clock-seq and node, big-endian.
func Bytes(u uuid.UUID) []byte {
	b := make([]byte, len(u))
	copy(b, u[:])
	return b
}

// FromBytes decodes the 16-byte store layout back into a UUID
func FromBytes(b []byte) (uuid.UUID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, &common.MalformedIdentifierError{Field: "uuid bytes", Value: fmt.Sprintf("%x", b), Err: err}
	}
	return u, nil
}
