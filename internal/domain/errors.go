package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed entity or relationship before anything
// is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ReferenceError rejects a relationship whose endpoint references an entity
// ID with no version in the store.
type ReferenceError struct {
	EntityID string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("relationship references unknown entity %s", e.EntityID)
}

// IsReference reports whether err is a ReferenceError anywhere in its chain.
func IsReference(err error) bool {
	var re *ReferenceError
	return errors.As(err, &re)
}

// NotFoundError is returned by direct by-id lookups only. Path finding and
// search return empty results instead of erroring.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransportError means a sync exchange did not complete. Already-applied
// inbound changes stay applied; the caller retries with backoff and the
// retried exchange re-sends a safe superset.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sync transport failed during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a TransportError anywhere in its chain.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
