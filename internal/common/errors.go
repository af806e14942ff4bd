// Package common defines the sentinel and typed errors shared by the ORM
// layer, the collectors and the admin glue. Callers should use errors.Is
// (or errors.As for the typed ones) to match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Lookup errors.
	ErrorNotFound      = errors.New("not found")
	ErrMultipleObjects = errors.New("multiple objects returned")

	// ErrPrecondition: the operation cannot start, e.g. a record without a key.
	ErrPrecondition = errors.New("precondition failed")

	// ErrPermissionDenied: privileged operation invoked without rights.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConstraintConflict: uniqueness collision, including with removed rows.
	ErrConstraintConflict = errors.New("constraint conflict")

	// ErrConfiguration: schema/registry misconfiguration.
	ErrConfiguration = errors.New("configuration error")

	// ErrFieldDoesNotExist: a column unknown to the entity type.
	ErrFieldDoesNotExist = errors.New("field does not exist")

	// ErrProtected: a restrict relation blocks the deletion.
	ErrProtected = errors.New("protected by related records")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// ConflictError reports a uniqueness collision for a group of fields.
// Deleted is set when the colliding record is logically removed.
type ConflictError struct {
	Model   string
	Fields  []string
	PK      any
	Deleted bool
}

func (e *ConflictError) Error() string {
	fields := strings.Join(e.Fields, ", ")
	if e.Deleted {
		return fmt.Sprintf("a %s record with fields: %s already exists among deleted records, review deleted records and modify the information", e.Model, fields)
	}
	return fmt.Sprintf("%s with this %s already exists", e.Model, fields)
}

func (e *ConflictError) Unwrap() error { return ErrConstraintConflict }

// ProtectedError lists how many records of which type block a deletion.
type ProtectedError struct {
	Model   string
	Related string
	Field   string
	Count   int
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("cannot delete some instances of %s because they are referenced through restricted foreign key %s.%s (%d records)",
		e.Model, e.Related, e.Field, e.Count)
}

func (e *ProtectedError) Unwrap() error { return ErrProtected }
