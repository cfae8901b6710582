package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by repositories, services, and handlers.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is a client-detectable input problem. It unwraps to
// ErrValidation so callers can match with errors.Is.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// Validator collects field errors so one response can report all of them.
type Validator struct {
	errs []FieldError
}

func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.errs = append(v.errs, FieldError{Field: field, Message: message})
	}
}

// Err returns nil when every check passed.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errs}
}

type ExternalKind string

const (
	ExternalRateLimited     ExternalKind = "rate_limited"
	ExternalPaymentRequired ExternalKind = "payment_required"
	ExternalUpstream        ExternalKind = "upstream"
)

// ExternalServiceError is a non-2xx answer from a third party (payments, AI).
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Kind       ExternalKind
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := fmt.Sprintf("%s: %s (status %d)", e.Service, e.Kind, e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError classifies an upstream HTTP status.
func NewExternalServiceError(service string, status int, err error) *ExternalServiceError {
	kind := ExternalUpstream
	switch status {
	case 429:
		kind = ExternalRateLimited
	case 402:
		kind = ExternalPaymentRequired
	}
	return &ExternalServiceError{Service: service, StatusCode: status, Kind: kind, Err: err}
}
