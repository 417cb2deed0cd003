package core

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrMalformedCursor is returned when a pagination cursor cannot be decoded
	ErrMalformedCursor = errors.New("malformed after cursor")

	// ErrInvalidFilter is returned when a filter tree has an unrecognized shape
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidPagination is returned for negative limit or offset values
	ErrInvalidPagination = errors.New("invalid pagination")

	// ErrNotFound is returned when a reference does not resolve to a live entity
	ErrNotFound = errors.New("entity not found")

	// ErrDeserialization is returned when a stored document is not parseable
	ErrDeserialization = errors.New("entity document could not be parsed")

	// ErrUnsupported is returned by write operations of the read-only core
	ErrUnsupported = errors.New("operation not supported")

	// ErrCanceled is returned when the caller's context ended mid-operation
	ErrCanceled = errors.New("operation canceled")

	// ErrStoreClosed is returned when trying to use a closed store
	ErrStoreClosed = errors.New("store is closed")
)

// Kind is the stable tag attached to every error surfaced by the catalog
type Kind string

const (
	KindMalformedCursor   Kind = "MalformedCursor"
	KindInvalidFilter     Kind = "InvalidFilter"
	KindInvalidPagination Kind = "InvalidPagination"
	KindNotFound          Kind = "EntityNotFound"
	KindDeserialization   Kind = "Deserialization"
	KindUnsupported       Kind = "UnsupportedOperation"
	KindCanceled          Kind = "Canceled"
	KindInternal          Kind = "Internal"
)

// IsInputError reports whether the kind is an input-validation failure
func (k Kind) IsInputError() bool {
	return k == KindMalformedCursor || k == KindInvalidFilter || k == KindInvalidPagination
}

// CatalogError wraps errors with operation context
type CatalogError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("catalog: %v", e.Err)
	}
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *CatalogError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Kind returns the stable tag of the wrapped error
func (e *CatalogError) Kind() Kind {
	return KindOf(e.Err)
}

// WrapError wraps an error with operation context
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CatalogError{Op: op, Err: err}
}

// KindOf classifies err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedCursor):
		return KindMalformedCursor
	case errors.Is(err, ErrInvalidFilter):
		return KindInvalidFilter
	case errors.Is(err, ErrInvalidPagination):
		return KindInvalidPagination
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDeserialization):
		return KindDeserialization
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
