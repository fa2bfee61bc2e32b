package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	// KindStatusCode means the server answered outside the accepted status range.
	KindStatusCode ErrorKind = "status_code_failure"
	// KindMalformedResponse means the reply could not be interpreted as HTTP.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindTransport covers URL-level and connection-level failures.
	KindTransport ErrorKind = "transport_error"
	// KindCancelled means the caller aborted the request.
	KindCancelled ErrorKind = "cancelled"
	// KindUnknown is used when nothing more specific applies.
	KindUnknown ErrorKind = "unknown"
)

// NetworkError is the only error type returned by Fetcher implementations.
type NetworkError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch e.Kind {
	case KindStatusCode:
		return fmt.Sprintf("fetch %s: unexpected status code %d", e.URL, e.StatusCode)
	case KindCancelled:
		return fmt.Sprintf("fetch %s: cancelled", e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusCodeError builds a KindStatusCode error.
func StatusCodeError(url string, code int) *NetworkError {
	return &NetworkError{Kind: KindStatusCode, URL: url, StatusCode: code}
}

// CancelledError builds a KindCancelled error.
func CancelledError(url string, cause error) *NetworkError {
	return &NetworkError{Kind: KindCancelled, URL: url, Err: cause}
}

// KindOf returns the kind carried by err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err is a caller-requested cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) && netErr.Kind == KindStatusCode {
		return netErr.StatusCode
	}
	return 0
}
