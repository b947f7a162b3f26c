package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInterpolation       = "INTERPOLATION_ERROR"
	ErrCodeVault               = "VAULT_ERROR"
	ErrCodeCredentialCorrupted = "CREDENTIAL_CORRUPTED"
	ErrCodeUpstream            = "UPSTREAM_ERROR"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeActionUnavailable   = "ACTION_UNAVAILABLE"
)

// Error is the structured error type for all blockrun operations.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	BlockID string         `json:"block_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.BlockID != "" {
		return fmt.Sprintf("[%s] block %s: %s", e.Code, e.BlockID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithBlock attaches a block ID to the error.
func (e *Error) WithBlock(blockID string) *Error {
	e.BlockID = blockID
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// HasCode reports whether err is an *Error carrying the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
