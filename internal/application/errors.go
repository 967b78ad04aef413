package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the caller may see a calendar or event
	// but not change it.
	ErrUnauthorized = errors.New("calendar: unauthorized")
	// ErrNotFound is returned for missing records and for records the caller
	// has no access to.
	ErrNotFound = errors.New("calendar: not found")
	// ErrAlreadyExists is returned when an account email is taken.
	ErrAlreadyExists = errors.New("calendar: already exists")
	// ErrInvalidCredentials is returned when an email/password pair is rejected.
	ErrInvalidCredentials = errors.New("calendar: invalid credentials")
	ErrSessionExpired     = errors.New("calendar: session expired")
	ErrSessionRevoked     = errors.New("calendar: session revoked")
	// ErrDefaultCalendar is returned when deleting a calendar flagged as default.
	ErrDefaultCalendar = errors.New("calendar: cannot delete default calendar")
	// ErrLastCalendar is returned when deleting the only calendar a user owns.
	ErrLastCalendar = errors.New("calendar: cannot delete the last calendar")
)

// ValidationError maps request fields to the message shown next to them.
// Services return it before any write.
type ValidationError struct {
	FieldErrors map[string]string
}

func newFieldError(field, message string) *ValidationError {
	return &ValidationError{FieldErrors: map[string]string{field: message}}
}

// Error lists the offending fields.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(v.Fields(), ", ")
}

// HasErrors reports whether any field was rejected.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Fields returns the rejected field names in lexical order.
func (v *ValidationError) Fields() []string {
	if v == nil {
		return nil
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// add keeps the first message recorded for a field.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}
