package imagecache

import (
	"errors"
	"fmt"

	"github.com/any-hub/imagehub/internal/fetch"
)

// Kind classifies every failure the cache can report.
type Kind string

const (
	KindNoDirectoryAvailable    Kind = "no_directory_available"
	KindDirectoryCreationFailed Kind = "directory_creation_failed"
	KindFailedToEncodeAddress   Kind = "failed_to_encode_address"
	KindFailedToReadFromDisk    Kind = "failed_to_read_from_disk"
	KindFailedToDecodeImage     Kind = "failed_to_decode_image"
	KindFailedToFetch           Kind = "failed_to_fetch"
	KindTaskCancelled           Kind = "task_cancelled"
	KindFailedToWriteToDisk     Kind = "failed_to_write_to_disk"
)

// Sentinels for errors.Is; matching compares Kind only.
var (
	ErrNoDirectoryAvailable    = &Error{Kind: KindNoDirectoryAvailable}
	ErrDirectoryCreationFailed = &Error{Kind: KindDirectoryCreationFailed}
	ErrFailedToEncodeAddress   = &Error{Kind: KindFailedToEncodeAddress}
	ErrFailedToReadFromDisk    = &Error{Kind: KindFailedToReadFromDisk}
	ErrFailedToDecodeImage     = &Error{Kind: KindFailedToDecodeImage}
	ErrFailedToFetch           = &Error{Kind: KindFailedToFetch}
	ErrTaskCancelled           = &Error{Kind: KindTaskCancelled}
	ErrFailedToWriteToDisk     = &Error{Kind: KindFailedToWriteToDisk}
)

// Error is the single error type returned by Cache implementations. Which
// fields are set depends on Kind: Origin and Bytes accompany decode failures,
// Path accompanies disk and directory failures, Err carries the cause
// (a *fetch.NetworkError for KindFailedToFetch).
type Error struct {
	Kind    Kind
	Address string
	Path    string
	Origin  Tier
	Bytes   int
	Err     error
}

func (e *Error) Error() string {
	msg := "imagecache: " + string(e.Kind)
	switch {
	case e.Address != "":
		msg += " " + e.Address
	case e.Path != "":
		msg += " " + e.Path
	}
	if e.Kind == KindFailedToDecodeImage {
		msg += fmt.Sprintf(" (%d bytes from %s)", e.Bytes, e.Origin)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NetworkError returns the transport failure behind a KindFailedToFetch error.
func (e *Error) NetworkError() *fetch.NetworkError {
	var netErr *fetch.NetworkError
	if errors.As(e.Err, &netErr) {
		return netErr
	}
	return nil
}

// KindOf returns the Kind of err, or "" when err did not come from this package.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ""
}

// IsCancelled reports whether err means "no answer yet" rather than a real failure.
func IsCancelled(err error) bool {
	return KindOf(err) == KindTaskCancelled
}

func cancelledError(address string, cause error) *Error {
	return &Error{Kind: KindTaskCancelled, Address: address, Err: cause}
}

func fetchError(address string, err error) *Error {
	if fetch.IsCancelled(err) {
		return cancelledError(address, err)
	}
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		netErr = &fetch.NetworkError{Kind: fetch.KindUnknown, URL: address, Err: err}
	}
	return &Error{Kind: KindFailedToFetch, Address: address, Err: netErr}
}
