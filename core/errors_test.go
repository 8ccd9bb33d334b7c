package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrTimeout is retryable", ErrTimeout, true},
		{"ErrConnectionFailed is retryable", ErrConnectionFailed, true},
		{"ErrNoProviderAvailable is retryable", ErrNoProviderAvailable, true},
		{"wrapped retryable error is retryable", fmt.Errorf("op failed: %w", ErrTimeout), true},
		{"ErrTaskNotFound is not retryable", ErrTaskNotFound, false},
		{"ErrInvalidConfiguration is not retryable", ErrInvalidConfiguration, false},
		{"custom error is not retryable", errors.New("custom error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrTaskNotFound) {
		t.Error("expected ErrTaskNotFound to be not-found")
	}
	if !IsNotFound(ErrSessionNotFound) {
		t.Error("expected ErrSessionNotFound to be not-found")
	}
	if IsNotFound(ErrInvalidConfiguration) {
		t.Error("did not expect ErrInvalidConfiguration to be not-found")
	}
}

func TestIsConfigurationError(t *testing.T) {
	if !IsConfigurationError(ErrInvalidConfiguration) {
		t.Error("expected ErrInvalidConfiguration to be a configuration error")
	}
	if !IsConfigurationError(ErrPRDInvalid) {
		t.Error("expected ErrPRDInvalid to be a configuration error")
	}
	if IsConfigurationError(ErrTaskNotFound) {
		t.Error("did not expect ErrTaskNotFound to be a configuration error")
	}
}

func TestFrameworkErrorUnwrapAndMessage(t *testing.T) {
	base := errors.New("boom")
	wrapped := NewFrameworkError("router.Select", "router", base)

	if !errors.Is(wrapped, base) {
		t.Error("expected errors.Is to see through FrameworkError")
	}
	if got := wrapped.Error(); got != "router.Select: boom" {
		t.Errorf("unexpected message: %q", got)
	}

	wrapped.ID = "task-1"
	if got := wrapped.Error(); got != "router.Select [task-1]: boom" {
		t.Errorf("unexpected message with id: %q", got)
	}
}
