package common

import (
	"errors"
	"fmt"
)

// InputParseError reports a malformed seed record. The record is skipped.
type InputParseError struct {
	Origin string // file name or "range"
	Line   int
	Reason string
}

func (e *InputParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid input at line %d of %s: %s", e.Line, e.Origin, e.Reason)
	}
	return fmt.Sprintf("invalid input in %s: %s", e.Origin, e.Reason)
}

// MalformedIdentifierError reports an identifier that could not be parsed. The record is skipped.
type MalformedIdentifierError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedIdentifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed %s %q", e.Field, e.Value)
}

func (e *MalformedIdentifierError) Unwrap() error {
	return e.Err
}

// UsageError is a bad command line invocation, raised before any writer opens
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// SkipReason classifies a per-record error for summaries and metrics
func SkipReason(err error) string {
	var parseErr *InputParseError
	var idErr *MalformedIdentifierError
	switch {
	case errors.As(err, &parseErr):
		return "input_parse"
	case errors.As(err, &idErr):
		return "malformed_identifier"
	default:
		return "other"
	}
}
