package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrDuplicateEvent - inbound item already processed (echo or re-delivery); drop silently
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrUnauthorized - webhook signature or freshness check failed; reject with 401, mutate nothing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput - malformed request or missing config field (fail fast, never silently defaulted)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found (unknown session, unknown channel)
	ErrNotFound = errors.New("not found")

	// ErrConflict - conflict (adapter already registered)
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error (network/provider failure; polling continues on the next tick)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
