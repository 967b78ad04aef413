package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a record is missing required values.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a record references a missing parent.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrInFilterTooLarge is returned when an "in" filter exceeds MaxInFilterValues.
	ErrInFilterTooLarge = errors.New("persistence: too many values in filter")
	// ErrMalformedDocument is returned when a stored record does not match its schema.
	ErrMalformedDocument = errors.New("persistence: malformed document")
)
