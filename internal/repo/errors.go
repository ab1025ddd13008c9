package repo

import "errors"

var (
	// ErrEventNotFound is returned when no event row matches an id.
	ErrEventNotFound = errors.New("event not found")
	// ErrHandlerNotFound is returned when no registry row matches a handler name.
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrSequenceConflict means another writer already used the sequence number.
	ErrSequenceConflict = errors.New("sequence number already taken for aggregate")
)
