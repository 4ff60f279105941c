// Package errors defines the SDK's error taxonomy. All repositories and
// layer clients return one of these kinds instead of raw transport or cache
// errors, so callers can branch on Type rather than string-matching.
package errors

import "fmt"

// Type classifies an SDKError for programmatic handling.
type Type string

const (
	// Cancelled means the operation was aborted by a cancellation signal.
	Cancelled Type = "CANCELLED"
	// RequestTimeout means the operation's deadline was exceeded.
	RequestTimeout Type = "REQUEST_TIMEOUT"
	// NotFound means the requested resource is absent (CacheOnly miss,
	// unknown partition, tile not present in any reachable quad-tree).
	NotFound Type = "NOT_FOUND"
	// ServiceUnavailable means the requested (service, version) pair was
	// not present in a successful lookup response.
	ServiceUnavailable Type = "SERVICE_UNAVAILABLE"
	// AccessDenied means the upstream responded 401 or 403.
	AccessDenied Type = "ACCESS_DENIED"
	// PreconditionFailed means the request itself is invalid given the
	// current state (missing data handle, already subscribed, etc).
	PreconditionFailed Type = "PRECONDITION_FAILED"
	// InvalidArgument means a malformed input was supplied by the caller.
	InvalidArgument Type = "INVALID_ARGUMENT"
	// CacheIO means the underlying cache returned an error and
	// Settings.PropagateAllCacheErrors is set.
	CacheIO Type = "CACHE_IO"
	// Unknown covers parse failures and transport errors not otherwise
	// classified.
	Unknown Type = "UNKNOWN"
)

// SDKError is the error type returned across the public surface of this
// module. It carries a Type for classification plus an optional cause.
type SDKError struct {
	Type    Type
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SDKError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with the underlying cause.
func (e *SDKError) Unwrap() error {
	return e.Err
}

// New creates an SDKError of the given type with no underlying cause.
func New(t Type, message string) error {
	return &SDKError{Type: t, Message: message}
}

// Newf creates an SDKError of the given type with a formatted message.
func Newf(t Type, format string, args ...interface{}) error {
	return &SDKError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// NewCancelled creates a Cancelled error.
func NewCancelled(message string) error {
	return &SDKError{Type: Cancelled, Message: message}
}

// NewNotFound creates a NotFound error.
func NewNotFound(message string) error {
	return &SDKError{Type: NotFound, Message: message}
}

// NewInvalidArgument creates an InvalidArgument error.
func NewInvalidArgument(message string) error {
	return &SDKError{Type: InvalidArgument, Message: message}
}

// NewPreconditionFailed creates a PreconditionFailed error.
func NewPreconditionFailed(message string) error {
	return &SDKError{Type: PreconditionFailed, Message: message}
}

// NewServiceUnavailable creates a ServiceUnavailable error.
func NewServiceUnavailable(message string) error {
	return &SDKError{Type: ServiceUnavailable, Message: message}
}

// NewAccessDenied creates an AccessDenied error.
func NewAccessDenied(message string) error {
	return &SDKError{Type: AccessDenied, Message: message}
}

// NewRequestTimeout creates a RequestTimeout error.
func NewRequestTimeout(message string) error {
	return &SDKError{Type: RequestTimeout, Message: message}
}

// NewCacheIO wraps a cache failure with the CacheIO type.
func NewCacheIO(message string, cause error) error {
	return &SDKError{Type: CacheIO, Message: message, Err: cause}
}

// NewUnknown wraps an unclassified failure.
func NewUnknown(message string, cause error) error {
	return &SDKError{Type: Unknown, Message: message, Err: cause}
}

// Wrap re-tags err with message, preserving its Type if it is already an
// SDKError, otherwise classifying it as Unknown.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if sdkErr, ok := err.(*SDKError); ok {
		return &SDKError{
			Type:    sdkErr.Type,
			Message: fmt.Sprintf("%s: %s", message, sdkErr.Message),
			Err:     sdkErr.Err,
		}
	}
	return &SDKError{Type: Unknown, Message: message, Err: err}
}

// Is reports whether err is an SDKError of type t.
func Is(err error, t Type) bool {
	sdkErr, ok := err.(*SDKError)
	return ok && sdkErr.Type == t
}

// IsCancelled reports whether err is a Cancelled error.
func IsCancelled(err error) bool { return Is(err, Cancelled) }

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return Is(err, NotFound) }

// IsAccessDenied reports whether err is an AccessDenied error.
func IsAccessDenied(err error) bool { return Is(err, AccessDenied) }

// TypeOf returns the Type of err if it is an SDKError, else Unknown.
func TypeOf(err error) Type {
	if sdkErr, ok := err.(*SDKError); ok {
		return sdkErr.Type
	}
	return Unknown
}
