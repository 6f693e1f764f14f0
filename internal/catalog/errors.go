package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrAlreadyExtracted marks a URL the extractor has already processed
	// in this run. Callers treat it as a skip, not a failure.
	ErrAlreadyExtracted = errors.New("url already extracted in this run")

	// ErrNoMapping marks a category pair with no entry in the mapping
	// table. The sync layer downgrades it to a warning and persists the
	// item without taxonomy linkage.
	ErrNoMapping = errors.New("no category mapping")

	// ErrQueueClosed is returned when enqueueing to or dequeueing from a
	// queue that has been shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// TransientError wraps a failure that may succeed on retry: network
// timeouts, 5xx responses, throttling.
type TransientError struct {
	Op  string
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil if err is nil.
func Transient(op, url string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, URL: url, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ValidationError marks a record that failed the persistence preconditions.
// Never retried.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %s: %s", e.URL, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
