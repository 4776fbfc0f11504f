package sqlmap

import (
	"errors"
	"fmt"

	"github.com/syssam/sqlmap/schema/relation"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("sqlmap: record not found")

	// ErrNotRegistered is returned when an operation references a model
	// that was never registered.
	ErrNotRegistered = errors.New("sqlmap: model not registered")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("sqlmap: cannot start a transaction within a transaction")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	table string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("sqlmap: %s not found (id=%v)", e.table, e.id)
	}
	return fmt.Sprintf("sqlmap: %s not found", e.table)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Table returns the table the lookup ran against.
func (e *NotFoundError) Table() string {
	return e.table
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given table.
func NewNotFoundError(table string, id any) *NotFoundError {
	return &NotFoundError{table: table, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotRegisteredError reports an operation on a model that has not been
// registered with the client or repository.
type NotRegisteredError struct {
	model string
}

// Error returns the error string.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("sqlmap: model %s is not registered", e.model)
}

// Is reports whether the target error matches NotRegisteredError.
func (e *NotRegisteredError) Is(err error) bool {
	return err == ErrNotRegistered
}

// Model returns the model type name.
func (e *NotRegisteredError) Model() string {
	return e.model
}

// IsNotRegistered returns true if the error is a NotRegisteredError.
func IsNotRegistered(err error) bool {
	if err == nil {
		return false
	}
	var e *NotRegisteredError
	return errors.As(err, &e) || errors.Is(err, ErrNotRegistered)
}

// SpecError reports an invalid model declaration discovered while building
// its spec, such as a missing primary key or an unmappable column.
type SpecError struct {
	Model string
	Err   error
}

// Error returns the error string.
func (e *SpecError) Error() string {
	return fmt.Sprintf("sqlmap: invalid model %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpecError) Unwrap() error {
	return e.Err
}

// IsSpecError returns true if the error is a SpecError.
func IsSpecError(err error) bool {
	if err == nil {
		return false
	}
	var e *SpecError
	return errors.As(err, &e)
}

// RelationInferenceError reports a relation that could not be derived
// unambiguously from the registered foreign keys.
type RelationInferenceError struct {
	Model  string
	Name   string
	Reason string
}

// Error returns the error string.
func (e *RelationInferenceError) Error() string {
	return fmt.Sprintf("sqlmap: cannot infer relation %q on %s: %s", e.Name, e.Model, e.Reason)
}

// IsRelationInference returns true if the error is a RelationInferenceError.
func IsRelationInference(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationInferenceError
	return errors.As(err, &e)
}

// UnknownRelationError reports a traversal or nested write that names a
// relation the model does not have.
type UnknownRelationError struct {
	Model string
	Name  string
}

// Error returns the error string.
func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("sqlmap: model %s has no relation %q", e.Model, e.Name)
}

// IsUnknownRelation returns true if the error is an UnknownRelationError.
func IsUnknownRelation(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownRelationError
	return errors.As(err, &e)
}

// RelationKindError reports an operation applied to a relation of the
// wrong kind, such as attaching a slice of children to a belongs-to.
type RelationKindError struct {
	Model string
	Name  string
	Want  relation.Kind
	Got   relation.Kind
}

// Error returns the error string.
func (e *RelationKindError) Error() string {
	return fmt.Sprintf("sqlmap: relation %q on %s is %s, not %s", e.Name, e.Model, e.Got, e.Want)
}

// IsRelationKind returns true if the error is a RelationKindError.
func IsRelationKind(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationKindError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("sqlmap: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// MutationError wraps a write error with the table and operation.
type MutationError struct {
	Table string
	Op    string
	Err   error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("sqlmap: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// QueryError wraps a read error with the table and operation.
type QueryError struct {
	Table string
	Op    string
	Err   error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("sqlmap: querying %s (%s): %v", e.Table, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}
