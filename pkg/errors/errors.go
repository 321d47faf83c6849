// Package errors provides the structured error type shared by tiercycle's stores, pipeline and configuration.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Configuration
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Object store
	ErrCodeObjectNotFound    ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeContainerNotFound ErrorCode = "CONTAINER_NOT_FOUND"
	ErrCodeAccessDenied      ErrorCode = "ACCESS_DENIED"
	ErrCodeTransient         ErrorCode = "TRANSIENT"
	ErrCodePermanent         ErrorCode = "PERMANENT"
	ErrCodeThrottled         ErrorCode = "THROTTLED"

	// State
	ErrCodeLockHeld      ErrorCode = "LOCK_HELD"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeCircuitOpen   ErrorCode = "CIRCUIT_OPEN"
	ErrCodeNotConfigured ErrorCode = "NOT_CONFIGURED"

	// Operation
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"

	// Internal
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups codes for reporting.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// TierError is a structured error with a code, retry hint and operational context.
type TierError struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	Cause    error             `json:"-"`

	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface.
func (e *TierError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		if e.Operation != "" {
			fmt.Fprintf(&b, "[%s:%s] ", e.Component, e.Operation)
		} else {
			fmt.Fprintf(&b, "[%s] ", e.Component)
		}
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *TierError) Unwrap() error {
	return e.Cause
}

// Is matches another TierError by code.
func (e *TierError) Is(target error) bool {
	if t, ok := target.(*TierError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed representation for debug logs.
func (e *TierError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("TierError{%s}", strings.Join(parts, ", "))
}

// NewError creates an error with category and retry hint derived from code.
func NewError(code ErrorCode, message string) *TierError {
	return &TierError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory determines the category for a code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigValidation, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeObjectNotFound, ErrCodeContainerNotFound, ErrCodeAccessDenied,
		ErrCodeTransient, ErrCodePermanent, ErrCodeThrottled:
		return CategoryStorage
	case ErrCodeLockHeld, ErrCodeInvalidState, ErrCodeCircuitOpen, ErrCodeNotConfigured:
		return CategoryState
	case ErrCodeOperationCanceled, ErrCodeRetryExhausted:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether errors with code are worth retrying.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeTransient, ErrCodeThrottled, ErrCodeInternalError:
		return true
	}
	return false
}

// WithContext adds a key/value pair of context.
func (e *TierError) WithContext(key, value string) *TierError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component.
func (e *TierError) WithComponent(component string) *TierError {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *TierError) WithOperation(operation string) *TierError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *TierError) WithCause(cause error) *TierError {
	e.Cause = cause
	return e
}

// NotFound builds an OBJECT_NOT_FOUND error for container/key.
func NotFound(container, key string) *TierError {
	return NewError(ErrCodeObjectNotFound, fmt.Sprintf("object %s/%s not found", container, key)).
		WithContext("container", container).
		WithContext("key", key)
}

// Transient wraps cause as a retryable store fault.
func Transient(message string, cause error) *TierError {
	return NewError(ErrCodeTransient, message).WithCause(cause)
}

// Permanent wraps cause as a non-retryable store fault.
func Permanent(message string, cause error) *TierError {
	return NewError(ErrCodePermanent, message).WithCause(cause)
}

// CodeOf returns the code of the first TierError in err's chain, or "" when there is none.
func CodeOf(err error) ErrorCode {
	var te *TierError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsNotFound reports whether err means the object is absent.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeObjectNotFound
}

// IsRetryable reports whether err carries a retry hint.
func IsRetryable(err error) bool {
	var te *TierError
	if stderrors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetRecommendation returns an operator hint for the error.
func (e *TierError) GetRecommendation() string {
	switch e.Code {
	case ErrCodeObjectNotFound:
		return "The object disappeared between listing and processing. It will be picked up again if it reappears."
	case ErrCodeContainerNotFound:
		return "Verify the container names in the configuration exist for the selected backend."
	case ErrCodeAccessDenied:
		return "The credentials lack read/write/delete permissions on one of the three containers."
	case ErrCodeTransient, ErrCodeThrottled:
		return "The store reported a temporary fault. Re-running the pipeline is safe."
	case ErrCodeCircuitOpen:
		return "Too many consecutive store failures. Check store health before the next run."
	case ErrCodeLockHeld:
		return "Another run holds the lock. Wait for it to finish or check the lock TTL."
	case ErrCodeInvalidConfig, ErrCodeConfigValidation, ErrCodeMissingConfig:
		return "Run `tiercycle validate` to see which configuration values are rejected."
	}
	return "Check the error message for details."
}
