package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentTooShort signals document text below the minimum length.
	ErrDocumentTooShort = errors.New("document text too short")
	// ErrEmptyQuery signals a missing query string.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrInvalidMode signals an unknown query mode.
	ErrInvalidMode = errors.New("invalid query mode")
	// ErrQueueFull signals a saturated ingestion queue.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrEngineUnavailable signals that the graph engine failed to initialize.
	ErrEngineUnavailable = errors.New("graph engine unavailable")
	// ErrProviderError signals an LLM or embedding provider failure.
	ErrProviderError = errors.New("model provider error")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// TextTooShortError wraps ErrDocumentTooShort with the observed and required lengths.
type TextTooShortError struct {
	Length int
	Min    int
}

func (e *TextTooShortError) Error() string {
	return fmt.Sprintf("%s: got %d characters, need at least %d", ErrDocumentTooShort.Error(), e.Length, e.Min)
}

func (e *TextTooShortError) Unwrap() error { return ErrDocumentTooShort }

// NewTextTooShort creates a too-short document error.
func NewTextTooShort(length, min int) error {
	return &TextTooShortError{Length: length, Min: min}
}
