package store

import (
	"errors"
	"fmt"
)

// StorageError wraps a failure reported by the SQLite driver.
type StorageError struct {
	// Op is the store operation: open, pragma, begin, exec, query, commit.
	Op string

	// SQL is the statement being run, when there is one.
	SQL string

	Err error
}

func (e *StorageError) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("storage: %s %q: %v", e.Op, e.SQL, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
