package store

import "errors"

var (
	// ErrNotFound is returned when a fetch succeeded but its results
	// could not be typed as the store's record type. A fetch with zero
	// results is a success, not ErrNotFound.
	ErrNotFound = errors.New("lattice: fetched records are not of the expected type")

	// ErrRead is returned when the fetch itself failed (engine error,
	// malformed query).
	ErrRead = errors.New("lattice: fetch failed")

	// ErrWrite is returned when an insert or update commit failed.
	ErrWrite = errors.New("lattice: save failed")

	// ErrDelete is returned when a delete commit failed.
	ErrDelete = errors.New("lattice: delete failed")
)
