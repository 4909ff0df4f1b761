package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeForbidden     ErrorType = "FORBIDDEN"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal      ErrorType = "EXTERNAL_ERROR"
	ErrorTypeUnavailable   ErrorType = "UNAVAILABLE"
	ErrorTypeSecurityEvent ErrorType = "SECURITY_EVENT"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency   ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidMethod     ErrorCode = "INVALID_METHOD"
	ErrCodeInvalidInstrument ErrorCode = "INVALID_INSTRUMENT"

	ErrCodeUnknownProvider      ErrorCode = "UNKNOWN_PROVIDER"
	ErrCodeUnsupportedMethod    ErrorCode = "UNSUPPORTED_METHOD"
	ErrCodePaymentRejected      ErrorCode = "PAYMENT_REJECTED"
	ErrCodePaymentIndeterminate ErrorCode = "PAYMENT_INDETERMINATE"
	ErrCodeInvalidSignature     ErrorCode = "INVALID_SIGNATURE"
	ErrCodeUnknownTransaction   ErrorCode = "UNKNOWN_TRANSACTION"
	ErrCodeTransactionNotFound  ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeStaleTransition      ErrorCode = "STALE_TRANSITION"
	ErrCodeReferenceConflict    ErrorCode = "REFERENCE_CONFLICT"
	ErrCodeNotRefundable        ErrorCode = "NOT_REFUNDABLE"
	ErrCodeExcessiveRefund      ErrorCode = "EXCESSIVE_REFUND"
	ErrCodeUnauthorizedAccess   ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
	// Retryable marks errors where the caller cannot know whether the
	// operation took effect and should retry or wait for reconciliation.
	Retryable bool `json:"retryable,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	copied := *e
	copied.Cause = cause
	return &copied
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	copied := *e
	copied.Details = details
	return &copied
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewRejectedError reports a terminal decline from a payment provider.
func NewRejectedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodePaymentRejected,
		Message:    message,
		StatusCode: http.StatusPaymentRequired,
	}
}

// NewIndeterminateError reports a provider call whose outcome is unknown
// (timeout, connection failure, 5xx). The transaction stays pending and the
// caller may retry with the same reference number.
func NewIndeterminateError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       ErrCodePaymentIndeterminate,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
		Retryable:  true,
	}
}

func NewSecurityEventError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeSecurityEvent,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

var (
	ErrTransactionNotFound = NewNotFoundError("Transaction not found", ErrCodeTransactionNotFound)
	ErrUnauthorizedAccess  = NewForbiddenError("unauthorized access to transaction", ErrCodeUnauthorizedAccess)
	ErrUnknownProvider     = NewValidationError("unknown payment provider", ErrCodeUnknownProvider)
	ErrUnsupportedMethod   = NewValidationError("payment method not supported by provider", ErrCodeUnsupportedMethod)
	ErrReferenceConflict   = NewConflictError("reference was submitted with different payment parameters", ErrCodeReferenceConflict)
	ErrNotRefundable       = NewConflictError("transaction is not in a refundable state", ErrCodeNotRefundable)
	ErrExcessiveRefund     = NewValidationError("refund amount exceeds refundable balance", ErrCodeExcessiveRefund)
	ErrStaleTransition     = NewConflictError("transaction was modified concurrently", ErrCodeStaleTransition)
	ErrInvalidSignature    = NewSecurityEventError("webhook signature verification failed", ErrCodeInvalidSignature)
	ErrUnknownTransaction  = NewNotFoundError("webhook references an unknown transaction", ErrCodeUnknownTransaction)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      ErrorType   `json:"type"`
		Code      ErrorCode   `json:"code"`
		Message   string      `json:"message"`
		Details   interface{} `json:"details,omitempty"`
		Retryable bool        `json:"retryable,omitempty"`
	}{
		Type:      e.Type,
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
	})
}
