package bulkwriter

import (
	"errors"
	"fmt"
)

// ErrWriterClosed is returned when a writer is used after Finalize or Abort
var ErrWriterClosed = errors.New("writer is closed")

// FlushIOError reports an I/O failure while producing a table's bulk file.
// No output file is left behind when it is returned.
type FlushIOError struct {
	Table string
	Path  string
	Err   error
}

func (e *FlushIOError) Error() string {
	return fmt.Sprintf("flush of table %s to %s failed: %v", e.Table, e.Path, e.Err)
}

func (e *FlushIOError) Unwrap() error {
	return e.Err
}
