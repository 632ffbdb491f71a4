// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"context"
	"errors"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (e.g., term text taken).
	ErrConflict = errors.New("conflict")

	// ErrTransient indicates a failure that may succeed on retry (lost connection, busy store).
	ErrTransient = errors.New("transient store failure")

	// ErrInvalid indicates a request that cannot be applied as submitted.
	ErrInvalid = errors.New("invalid request")

	// ErrUnknownOperation indicates an operation code the backend does not serve.
	ErrUnknownOperation = errors.New("unknown operation")
)

// Class is a coarse failure category used to pick a response outcome.
type Class int

const (
	ClassNone Class = iota
	ClassNotFound
	ClassConflict
	ClassTransient
	ClassInvalid
	ClassOther
)

// Classify maps err onto a Class. Context expiry counts as transient.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrConflict):
		return ClassConflict
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ClassTransient
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrUnknownOperation):
		return ClassInvalid
	default:
		return ClassOther
	}
}
