package coordinator

import (
	"fmt"
	"strings"
)

// TableFailure records a table whose bulk file could not be produced
type TableFailure struct {
	Profile string
	Table   string
	Err     error
}

func (e *TableFailure) Error() string {
	return fmt.Sprintf("profile %s: table %s: %v", e.Profile, e.Table, e.Err)
}

func (e *TableFailure) Unwrap() error {
	return e.Err
}

// RunError reports that at least one table failed to finalize. Tables not
// listed in Failures were finalized and their files are valid.
type RunError struct {
	Failures []TableFailure
}

func (e *RunError) Error() string {
	tables := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		tables = append(tables, f.Table)
	}
	return fmt.Sprintf("%d table(s) failed to finalize: %s", len(e.Failures), strings.Join(tables, ", "))
}

// Unwrap exposes every table failure to errors.Is / errors.As
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for i := range e.Failures {
		errs = append(errs, &e.Failures[i])
	}
	return errs
}
