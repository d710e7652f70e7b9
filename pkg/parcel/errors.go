package parcel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no record matches the identifier.
	ErrNotFound = errors.New("parcel not found")

	// ErrAlreadyVerified is returned when approving a record that is already VERIFIED.
	ErrAlreadyVerified = errors.New("parcel is already verified and immutable")

	// ErrImmutableRecord is returned when editing or deleting a VERIFIED record.
	ErrImmutableRecord = errors.New("parcel has been verified and can no longer be changed")

	// ErrBadRequest is returned when a lookup carries no usable identifier.
	ErrBadRequest = errors.New("provide a land id or fingerprint")

	// ErrConflict is returned when the record changed underneath an operation,
	// or a unique identifier is already taken.
	ErrConflict = errors.New("parcel was modified concurrently")

	// ErrStoreFailure matches every *StoreError.
	ErrStoreFailure = errors.New("parcel store failure")
)

// StoreError wraps an I/O or serialization failure inside a store.
// The wrapped error is meant for logs, never for API clients.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("parcel store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreFailure) true for any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a submission or edit.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid parcel: " + strings.Join(parts, "; ")
}

// add appends a field error.
func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// orNil returns e when it carries at least one field, nil otherwise.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
