package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrAlreadyExists", ErrAlreadyExists, "already exists"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrInvalidProvider", ErrInvalidProvider, "invalid provider"},
		{"ErrServiceUnavailable", ErrServiceUnavailable, "service unavailable"},
		{"ErrEmbeddingMismatch", ErrEmbeddingMismatch, "embedding count mismatch"},
		{"ErrPermanent", ErrPermanent, "permanent failure"},
		{"ErrInstanceBusy", ErrInstanceBusy, "instance is being advanced elsewhere"},
		{"ErrInvalidToolCall", ErrInvalidToolCall, "invalid tool call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrInvalidProvider,
		ErrServiceUnavailable,
		ErrEmbeddingMismatch,
		ErrPermanent,
		ErrInstanceBusy,
		ErrInvalidToolCall,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestErrorsIs_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("persist page: %w", ErrAlreadyExists)
	if !errors.Is(wrapped, ErrAlreadyExists) {
		t.Error("wrapped error should match ErrAlreadyExists")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped error should not match ErrNotFound")
	}
}
