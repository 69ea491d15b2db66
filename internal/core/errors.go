package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionIndexing rejects questions against a session whose batch
	// ingestion has not finished. Partial results are never served silently.
	ErrSessionIndexing = errors.New("session is still indexing")
)

// ModelUnavailableError reports that a model capability could not be reached
// after its retry. Each component documents its own degraded behavior; this
// error never crashes a session.
type ModelUnavailableError struct {
	Capability string // "classification", "embedding" or "generation"
	Err        error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%s model unavailable: %v", e.Capability, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// DimensionError reports a vector whose width does not match the index.
// Dimensionality is fixed for the lifetime of one index instance.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index holds %d-dimensional vectors, got %d", e.Want, e.Got)
}
