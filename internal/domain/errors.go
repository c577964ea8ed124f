package domain

import "errors"

var (
	// ErrMalformedInput means a sensor log lacks a required column or a header.
	ErrMalformedInput = errors.New("malformed input")

	// ErrNotFound is returned by point lookups that match no record.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable means the record store could not be opened or initialised.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidRecord is returned when a record fails validation before a write.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrMissingParent is returned when a result is written without its raw record.
	ErrMissingParent = errors.New("raw parent record missing")
)
