package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates the AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrEmbeddingMismatch indicates the embedding service returned a
	// different number of vectors than texts it was given
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")

	// ErrPermanent marks a failure that must not be retried
	ErrPermanent = errors.New("permanent failure")

	// ErrInstanceBusy indicates another worker is advancing the instance
	ErrInstanceBusy = errors.New("instance is being advanced elsewhere")

	// ErrInvalidToolCall indicates the model requested an unknown tool or
	// passed malformed arguments
	ErrInvalidToolCall = errors.New("invalid tool call")
)
