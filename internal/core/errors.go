package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for the resolution and acquisition pipeline. Handlers map
// these onto HTTP statuses; everything else is treated as an internal error.
var (
	// ErrInvalidURL indicates a caller-supplied URL that matches no
	// recognized catalog-resource pattern.
	ErrInvalidURL = errors.New("invalid catalog URL")

	// ErrNotFound indicates the upstream catalog has no such resource.
	ErrNotFound = errors.New("catalog resource not found")

	// ErrUpstreamAuth indicates credential exchange or catalog
	// authentication failed after the single internal retry.
	ErrUpstreamAuth = errors.New("upstream authentication failed")

	// ErrUpstreamUnavailable indicates a transient upstream failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNoMatch indicates the search heuristic found no acceptable
	// candidate. This is an outcome, not a system fault.
	ErrNoMatch = errors.New("no matching candidate found")
)

// SearchError reports a search backend invocation failure or malformed
// backend output. Diagnostic output is logged, never returned to callers.
type SearchError struct {
	Output string
	Err    error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search backend failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// AcquisitionError reports an acquisition backend process failure. Stderr
// holds the tail of the backend's diagnostic output.
type AcquisitionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition backend failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
