package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates an exact lookup matched multiple enabled
	// sources and needs explicit disambiguation.
	ErrAmbiguous = errors.New("ambiguous")

	// ErrInvalidConfig indicates the workspace config is malformed.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Lock errors.

	// ErrAlreadyLocked indicates another process holds the workspace lock.
	ErrAlreadyLocked = errors.New("workspace is locked")

	// ErrLockIO indicates a filesystem failure while acquiring or
	// releasing the workspace lock.
	ErrLockIO = errors.New("workspace lock I/O failure")

	// Fetch errors.

	// ErrUnsafeTarget indicates the SSRF defence refused a network target.
	ErrUnsafeTarget = errors.New("unsafe fetch target")

	// ErrRedirect indicates the redirect cap was exceeded or a redirect
	// response carried no target location.
	ErrRedirect = errors.New("redirect failure")

	// ErrSizeExceeded indicates a source exceeded the byte ceiling.
	ErrSizeExceeded = errors.New("size limit exceeded")

	// ErrFetch indicates an unexpected HTTP status from the origin.
	ErrFetch = errors.New("fetch failed")

	// ErrParse indicates the source bytes could not be reduced to
	// document records (unsupported format or version).
	ErrParse = errors.New("parse failed")

	// ErrSourceFailed wraps any per-source failure, tagged with the
	// offending source id.
	ErrSourceFailed = errors.New("source failed")
)

// AmbiguousError reports an exact lookup that matched the same key in
// multiple enabled sources. SourceIDs is sorted.
type AmbiguousError struct {
	Kind      DocKind
	Key       string
	SourceIDs []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous %s %s: found in multiple enabled sources (%s); re-run with --source <id> to disambiguate",
		e.Kind, e.Key, strings.Join(e.SourceIDs, ", "))
}

// Is makes AmbiguousError match ErrAmbiguous.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// SourceError tags an underlying failure with the offending source id.
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is makes SourceError match ErrSourceFailed.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceFailed
}

// StatusError reports a non-2xx, non-304 HTTP status from an origin.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch failed: %s returned status %d", e.URL, e.Status)
}

// Is makes StatusError match ErrFetch.
func (e *StatusError) Is(target error) bool {
	return target == ErrFetch
}
