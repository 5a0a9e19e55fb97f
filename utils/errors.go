package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Stable machine-readable error codes returned to callers and written to the
// audit trail.
const (
	CodeIntegrationNotFound   = "integration_not_found"
	CodeInvalidSignature      = "invalid_signature"
	CodeMissingRequiredFields = "missing_required_fields"
	CodeDecryptionError       = "decryption_error"
	CodeRateLimited           = "rate_limited"
	CodeUpstreamAPIError      = "upstream_api_error"
	CodeTransactionError      = "transaction_error"
)

// PipelineError is the ingestion pipeline's error taxonomy: a stable code, the
// HTTP status it maps to, and the underlying cause. Upstream API errors are
// the only retryable kind; everything else is terminal for the current event.
type PipelineError struct {
	Code       string
	Status     int
	Message    string
	RetryAfter time.Duration // only set for rate_limited
	Err        error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient and worth retrying with
// backoff.
func (e *PipelineError) Retryable() bool { return e.Code == CodeUpstreamAPIError }

func ErrIntegrationNotFound(tenantID uint) *PipelineError {
	return &PipelineError{
		Code:    CodeIntegrationNotFound,
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("no active integration for tenant %d", tenantID),
	}
}

func ErrInvalidSignature() *PipelineError {
	return &PipelineError{
		Code:    CodeInvalidSignature,
		Status:  fiber.StatusUnauthorized,
		Message: "webhook signature verification failed",
	}
}

func ErrMissingRequiredFields(detail string) *PipelineError {
	return &PipelineError{
		Code:    CodeMissingRequiredFields,
		Status:  fiber.StatusBadRequest,
		Message: detail,
	}
}

func ErrDecryption(err error) *PipelineError {
	return &PipelineError{
		Code:    CodeDecryptionError,
		Status:  fiber.StatusInternalServerError,
		Message: "credential decryption failed",
		Err:     err,
	}
}

func ErrRateLimited(retryAfter time.Duration) *PipelineError {
	return &PipelineError{
		Code:       CodeRateLimited,
		Status:     fiber.StatusTooManyRequests,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

func ErrUpstreamAPI(err error) *PipelineError {
	return &PipelineError{
		Code:    CodeUpstreamAPIError,
		Status:  fiber.StatusBadGateway,
		Message: "upstream API request failed",
		Err:     err,
	}
}

func ErrTransaction(err error) *PipelineError {
	return &PipelineError{
		Code:    CodeTransactionError,
		Status:  fiber.StatusInternalServerError,
		Message: "transaction failed",
		Err:     err,
	}
}

// AsPipelineError normalizes any error into a PipelineError, wrapping unknown
// failures as transaction errors.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return ErrTransaction(err)
}
