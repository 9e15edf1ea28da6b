package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeProvider          = "PROVIDER_ERROR"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeParse             = "PARSE_ERROR"
)

var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrEmbeddingJobNotFound = NewDomainError(ErrCodeNotFound, "embedding job not found")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrBatchTooLarge        = NewDomainError(ErrCodeValidation, "embedding batch exceeds maximum size")
	ErrEmptyBatch           = NewDomainError(ErrCodeValidation, "embedding batch is empty")
)

// ProviderError is returned when the embedding provider call does not succeed.
// StatusCode is 0 when no HTTP response was received.
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("embedding provider error: status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("embedding provider error: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("embedding provider error: %v", e.Err)
	}
	return "embedding provider error"
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Code reports the domain error code for HTTP mapping.
func (e *ProviderError) Code() string { return ErrCodeProvider }

// MalformedResponseError is returned when the provider response lacks the
// expected vector array shape.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed embedding response: " + e.Reason
}

func (e *MalformedResponseError) Code() string { return ErrCodeMalformedResponse }

// ParseError is returned when a stored embedding cannot be read as a vector.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	input := e.Input
	if len(input) > 40 {
		input = input[:40] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot parse embedding %q: %v", input, e.Err)
	}
	return fmt.Sprintf("cannot parse embedding %q", input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Code() string { return ErrCodeParse }

// ErrorCode extracts a domain error code from err, or "" when err carries none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
