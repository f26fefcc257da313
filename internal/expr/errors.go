package expr

import (
	"errors"
	"fmt"
)

// TypeMismatchError reports an operator applied to an incompatible
// operand: a nil or non-collection source, an entity-shaped operator after
// a projection, an unresolvable path, or a value of the wrong data type.
type TypeMismatchError struct {
	// Operator is the node being constructed (e.g. "Filter").
	Operator string

	// Path is the offending predicate or projection path, if any.
	Path string

	Message string
}

func (e *TypeMismatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("type mismatch: %s: %s: %s", e.Operator, e.Path, e.Message)
	}
	return fmt.Sprintf("type mismatch: %s: %s", e.Operator, e.Message)
}

// IsTypeMismatch returns true if err is or wraps a *TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}

func mismatch(op NodeType, path, format string, args ...any) *TypeMismatchError {
	return &TypeMismatchError{
		Operator: op.String(),
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ChainError reports an operator appended after a frame operator in a
// dynamically built chain.
type ChainError struct {
	// Index is the position of the rejected call in the chain.
	Index int

	// Operator is the rejected operator; Frame is the terminal operator
	// it was appended to.
	Operator NodeType
	Frame    NodeType
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain: call %d (%s) follows terminal operator %s", e.Index, e.Operator, e.Frame)
}

// IsChainError returns true if err is or wraps a *ChainError.
func IsChainError(err error) bool {
	var ce *ChainError
	return errors.As(err, &ce)
}
