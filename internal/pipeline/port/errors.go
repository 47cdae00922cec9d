package port

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrObjectNotFound    = errors.New("object not found")
	ErrObjectExists      = errors.New("object already exists")
	ErrLockHeld          = errors.New("lock is held by another owner")

	ErrEmptySource     = errors.New("archive source is empty")
	ErrSourceRead      = errors.New("archive source read failed")
	ErrArchiveUpload   = errors.New("archive upload failed")
	ErrURLIssuance     = errors.New("archive url issuance failed")
	ErrBuildInProgress = errors.New("archive build already in progress")

	ErrFetch  = errors.New("archive fetch failed")
	ErrFormat = errors.New("archive format error")

	ErrValidation    = errors.New("validation failed")
	ErrPartialUpload = errors.New("partial upload failure")

	ErrBackendCall = errors.New("backend call failed")
	ErrQueueFull   = errors.New("pipeline queue is full")
)

// SourceReadError reports a failed list or download while building an archive.
type SourceReadError struct {
	Key string
	Err error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrSourceRead, e.Key, e.Err)
}

func (e *SourceReadError) Is(target error) bool { return target == ErrSourceRead }

func (e *SourceReadError) Unwrap() error { return e.Err }

// URLIssuanceError reports an archive that was stored but could not be signed.
type URLIssuanceError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *URLIssuanceError) Error() string {
	return fmt.Sprintf("%v: %s/%s: %v", ErrURLIssuance, e.Bucket, e.Key, e.Err)
}

func (e *URLIssuanceError) Is(target error) bool { return target == ErrURLIssuance }

func (e *URLIssuanceError) Unwrap() error { return e.Err }

// FetchError reports a failed archive download. StatusCode is zero for transport errors.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: http status %d", ErrFetch, e.StatusCode)
	}
	return fmt.Sprintf("%v: %v", ErrFetch, e.Err)
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

func (e *FetchError) Unwrap() error { return e.Err }

// FormatError reports a payload that is not a readable archive.
type FormatError struct {
	Entry string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%v: entry %s: %v", ErrFormat, e.Entry, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrFormat, e.Err)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() error { return e.Err }

// ValidationError reports a file rejected before any upload started.
type ValidationError struct {
	FileName string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.FileName, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PartialUploadError reports the file that stopped an upload batch.
// Uploaded lists the paths stored before the failure; they are left in place.
type PartialUploadError struct {
	FileName string
	Uploaded []string
	Err      error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("%v: %s (%d uploaded): %v", ErrPartialUpload, e.FileName, len(e.Uploaded), e.Err)
}

func (e *PartialUploadError) Is(target error) bool { return target == ErrPartialUpload }

func (e *PartialUploadError) Unwrap() error { return e.Err }

// BackendError reports a failed parse call. StatusCode is zero for transport errors,
// Status carries the response body status when the call returned 2xx.
type BackendError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299):
		return fmt.Sprintf("%v: http status %d", ErrBackendCall, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", ErrBackendCall, e.Err)
	default:
		return fmt.Sprintf("%v: response status %q", ErrBackendCall, e.Status)
	}
}

func (e *BackendError) Is(target error) bool { return target == ErrBackendCall }

func (e *BackendError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the call may succeed.
func (e *BackendError) Temporary() bool {
	switch e.StatusCode {
	case 0:
		return e.Err != nil
	case 502, 503, 504:
		return true
	}
	return false
}
