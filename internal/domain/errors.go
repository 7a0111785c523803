package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Error types for consistent error handling across the marketplace API.

// ErrNotFound indicates a resource was not found, or that it exists but is not
// owned by the caller. Both cases are reported the same way.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input). Fields carries
// per-field messages when more than one field failed.
type ErrValidation struct {
	Field   string
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if len(e.Fields) > 0 && e.Field == "" {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
		}
		return "validation error: " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// FieldErrors returns the per-field messages, including the single Field/Message pair.
func (e *ErrValidation) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	if e.Field != "" {
		out[e.Field] = e.Message
	}
	return out
}

// ErrForbidden indicates the caller's role does not allow the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates an invalid state transition or a duplicate unique value
// (e.g. resolving a certification twice, duplicate CNPJ).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidSignature indicates a webhook payload whose signature could not be verified.
type ErrInvalidSignature struct {
	Provider string
}

func (e *ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid webhook signature: %s", e.Provider)
}
