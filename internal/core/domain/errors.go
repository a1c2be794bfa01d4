package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form CS-<AREA>-<HTTP status><seq>.
type DomainError struct {
	Code    string // Error code (e.g., "CS-ENTRY-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Entry errors (ENTRY).
var (
	// ErrEntryNotFound indicates no entry exists with the requested id.
	ErrEntryNotFound = NewDomainError("CS-ENTRY-4040", "Entry not found")

	// ErrEntryValidation indicates the submitted payload is malformed.
	ErrEntryValidation = NewDomainError("CS-ENTRY-4001", "entry validation failed")
)

// Storage errors (STOR).
var (
	// ErrStorage indicates the persistent store failed to read or write.
	ErrStorage = NewDomainError("CS-STOR-5000", "storage error")

	// ErrStorageClosed indicates the store was used after Close.
	ErrStorageClosed = NewDomainError("CS-STOR-5030", "storage closed")
)

// Peer channel errors (PEER).
var (
	// ErrChannelSend indicates a frame could not be delivered to a peer.
	// It never leaves the broadcaster; the failing channel is torn down.
	ErrChannelSend = NewDomainError("CS-PEER-5000", "peer channel send failed")

	// ErrChannelExists indicates a connection id was registered twice.
	ErrChannelExists = NewDomainError("CS-PEER-4090", "peer channel already registered")
)

// System errors (SYS).
var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("CS-SYS-5000", "internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("CS-SYS-4000", "bad request")

	// ErrPayloadTooLarge indicates the request body exceeded the configured cap.
	ErrPayloadTooLarge = NewDomainError("CS-SYS-4130", "request body too large")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("CS-SYS-4290", "too many requests")
)

// Argument errors (ARG).
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("CS-ARG-4000", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("CS-ARG-4001", "missing required argument")
)
