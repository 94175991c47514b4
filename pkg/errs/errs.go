// Package errs provides the typed error taxonomy used by the download
// engine and retry coordinator. It replaces substring matching on error
// messages with sentinel values usable through errors.Is and errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller of engine.Start may observe.
var (
	ErrDuplicate          = errors.New("duplicate in-flight download")
	ErrDuplicateScheduled = errors.New("duplicate scheduled download")
	ErrDuplicateInFlight  = errors.New("duplicate in-flight download blocks scheduling")
	ErrAbandoned          = errors.New("stale download record abandoned")
	ErrHTTPStatus         = errors.New("unexpected http status")
	ErrTransport          = errors.New("transport error")
	ErrCancelled          = errors.New("cancelled")
)

// HTTPStatusError carries the non-2xx status code the Fetcher returned.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status: %d", e.Code)
}

func (e *HTTPStatusError) Unwrap() error { return ErrHTTPStatus }

// DuplicateScheduledError carries how long the pending scheduled download
// still has to wait before it fires.
type DuplicateScheduledError struct {
	RemainingSeconds float64
}

func (e *DuplicateScheduledError) Error() string {
	return fmt.Sprintf("duplicate scheduled download, %.1fs remaining", e.RemainingSeconds)
}

func (e *DuplicateScheduledError) Unwrap() error { return ErrDuplicateScheduled }

// TransportError wraps a failure from the Fetcher or the body stream.
type TransportError struct {
	Inner error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Inner)
}

func (e *TransportError) Unwrap() error { return errors.Join(ErrTransport, e.Inner) }

// Wrap wraps an error with additional context, the way gotya's
// pkg/errors.Wrap does, preserving the chain for errors.Is/As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsDuplicate reports whether err is any of the three Duplicate* variants.
// The Retry Coordinator uses this instead of string matching (spec.md §9)
// to decide whether an attempt should bump the retry counter.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrDuplicateScheduled) ||
		errors.Is(err, ErrDuplicateInFlight)
}
