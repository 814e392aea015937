package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned when an operation references an unknown RFQ.
	ErrNotFound = eris.New("rfq not found")

	// ErrInvalidAttribute is returned when a supplied value violates a field's
	// type or range. Values are rejected, never coerced.
	ErrInvalidAttribute = eris.New("invalid attribute")

	// ErrMalformedAuditEvent marks an audit event whose payload cannot be
	// parsed. Rollups skip and count these instead of failing.
	ErrMalformedAuditEvent = eris.New("malformed audit event")

	// ErrConflict is returned when a record changed between read and write.
	// The caller re-reads and tries again.
	ErrConflict = eris.New("rfq modified concurrently")
)

// AttributeError describes which field was rejected and why.
type AttributeError struct {
	Field  string
	Reason string
}

// NewAttributeError returns an AttributeError for field.
func NewAttributeError(field, reason string) *AttributeError {
	return &AttributeError{Field: field, Reason: reason}
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("invalid attribute %s: %s", e.Field, e.Reason)
}

func (e *AttributeError) Unwrap() error {
	return ErrInvalidAttribute
}
