package storage

import "errors"

// Record store errors. Rows are written once and never updated.
var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a record with the same key was
	// already written, typically by a concurrent signing attempt.
	ErrDuplicateKey = errors.New("duplicate key: record already exists")

	// ErrInvalidInput is returned for nil records or empty keys.
	ErrInvalidInput = errors.New("invalid record")
)
