package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("CS-TEST-1000", "test message"),
			expected: "[CS-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("CS-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[CS-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("CS-TEST-1000", "message 1")
	err2 := NewDomainError("CS-TEST-1000", "message 2")
	err3 := NewDomainError("CS-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_UnwrapAndCopies(t *testing.T) {
	cause := fmt.Errorf("disk full")
	original := NewDomainError("CS-TEST-1000", "wrapper")
	wrapped := original.WithDetails("key e/1").WithCause(cause)

	if original.Cause != nil || original.Details != "" {
		t.Error("WithDetails/WithCause should not modify the original")
	}
	if errors.Unwrap(wrapped) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(wrapped), cause)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if !errors.Is(wrapped, original) {
		t.Error("errors.Is should match by code after chaining")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrEntryNotFound, "CS-ENTRY-4040"},
		{"wrapped domain error", fmt.Errorf("get: %w", ErrStorage), "CS-STOR-5000"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", ErrEntryValidation)
	if !IsDomainError(wrapped, "CS-ENTRY-4001") {
		t.Error("IsDomainError should work with wrapped errors")
	}
	if !IsDomainError(wrapped, "") {
		t.Error("IsDomainError with empty code should match any DomainError")
	}
	if IsDomainError(fmt.Errorf("plain"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
}
