package schema

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// MetadataError reports an invalid or inconsistent entity, entity set or
// context declaration. It is fatal to the declaration that produced it;
// the registry is left as it was before the failing call.
type MetadataError struct {
	// Entity is the entity (or entity set / context) being declared.
	Entity string

	// Field is the offending field, empty for entity-level problems.
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *MetadataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("metadata: %s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("metadata: %s: %s", e.Entity, e.Message)
}

// IsMetadataError returns true if err is or wraps a *MetadataError.
func IsMetadataError(err error) bool {
	var me *MetadataError
	return errors.As(err, &me)
}

func newMetadataError(entity, field, format string, args ...any) *MetadataError {
	return &MetadataError{
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// LoadError reports a problem in a CUE schema source, with its position
// when CUE provides one.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
