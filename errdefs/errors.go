package errdefs

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when an indexing run is requested while
// another one is still active. It is surfaced as a conflict, never queued.
var ErrAlreadyRunning = errors.New("an indexing run is already in progress")

// ErrStoreUnavailable marks failures of the index store itself (database
// unreachable, disk full). Any error wrapping it is fatal to the owning job.
var ErrStoreUnavailable = errors.New("index store unavailable")

// ErrJobNotFound is returned when polling or cancelling an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ValidationError describes a malformed request parameter. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError for the given field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExtractionError records a single file's failed signal extraction. It is
// collected into the owning job's error list and does not abort the run;
// the file stays eligible for retry on the next pass.
type ExtractionError struct {
	Path  string
	Phase string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed for %s: %v", e.Phase, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtraction wraps a per-file extraction failure with its phase context.
func NewExtraction(phase, path string, err error) *ExtractionError {
	return &ExtractionError{Path: path, Phase: phase, Err: err}
}

// BatchItemError records the failure of one item inside a batch operation.
// The batch continues with the remaining items.
type BatchItemError struct {
	PhotoID uint
	Reason  string
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d failed: %s", e.PhotoID, e.Reason)
}

// IsFatal reports whether err must fail the whole job rather than be
// absorbed as a per-item error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
