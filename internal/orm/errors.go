package orm

import (
	"errors"
	"fmt"

	"github.com/roach88/entql/internal/expr"
)

// CardinalityError reports a Single or First whose query returned the
// wrong number of rows.
type CardinalityError struct {
	Frame expr.NodeType

	// Rows is the number of rows seen. For Single it is capped at 2.
	Rows int
}

func (e *CardinalityError) Error() string {
	switch {
	case e.Rows == 0:
		return fmt.Sprintf("%s: sequence contains no elements", e.Frame)
	default:
		return fmt.Sprintf("%s: sequence contains more than one element", e.Frame)
	}
}

// IsCardinalityError returns true if err is or wraps a *CardinalityError.
func IsCardinalityError(err error) bool {
	var ce *CardinalityError
	return errors.As(err, &ce)
}
