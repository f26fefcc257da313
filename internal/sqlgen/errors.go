package sqlgen

import (
	"errors"
	"fmt"

	"github.com/roach88/entql/internal/expr"
)

// EmptyEntityError reports an insert of an instance with no populated
// non-key field. It is raised before any statement reaches storage.
type EmptyEntityError struct {
	Entity string
}

func (e *EmptyEntityError) Error() string {
	return fmt.Sprintf("cannot insert %s: no fields contain values in the entity to be saved", e.Entity)
}

// IsEmptyEntity returns true if err is or wraps an *EmptyEntityError.
func IsEmptyEntity(err error) bool {
	var ee *EmptyEntityError
	return errors.As(err, &ee)
}

// LoweringError reports a tree that cannot be lowered, such as a Filter
// that must run after in-memory paging.
type LoweringError struct {
	Node    expr.NodeType
	Message string
}

func (e *LoweringError) Error() string {
	return fmt.Sprintf("lowering %s: %s", e.Node, e.Message)
}

// IsLoweringError returns true if err is or wraps a *LoweringError.
func IsLoweringError(err error) bool {
	var le *LoweringError
	return errors.As(err, &le)
}
