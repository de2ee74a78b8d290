package service

import (
	"errors"
	"strings"

	"github.com/neerajk1208/ivfb/internal/repository"
)

var (
	// ErrNotFound is returned when a requested record does not exist. It
	// matches repository.ErrNotFound with errors.Is.
	ErrNotFound = repository.ErrNotFound

	// ErrForbidden is returned when a record exists but belongs to another user
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable is returned when an optional collaborator is not configured
	ErrUnavailable = errors.New("service unavailable")
)

// FieldError describes one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every offending field of a rejected input
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
