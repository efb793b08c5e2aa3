package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredentials    = errors.New("missing credentials")
	ErrUnsupportedCapability = errors.New("unsupported capability")
)

// ErrorKind classifies backend failures.
type ErrorKind string

const (
	ErrorAuth        ErrorKind = "auth"
	ErrorUnsupported ErrorKind = "unsupported"
	ErrorUpstream    ErrorKind = "upstream"
	ErrorTransport   ErrorKind = "transport"
)

// Error is returned by every backend variant.
type Error struct {
	Kind       ErrorKind
	Backend    Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	parts := []string{string(e.Backend), string(e.Kind)}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AuthError reports missing or rejected credentials.
func AuthError(kind Kind, err error) *Error {
	if err == nil {
		err = ErrMissingCredentials
	}
	return &Error{Kind: ErrorAuth, Backend: kind, Err: err}
}

// UnsupportedError reports a capability the variant does not have.
func UnsupportedError(kind Kind, capability string) *Error {
	return &Error{Kind: ErrorUnsupported, Backend: kind, Err: fmt.Errorf("%w: %s", ErrUnsupportedCapability, capability)}
}

// UpstreamError reports a non-success HTTP response.
func UpstreamError(kind Kind, status int, body string) *Error {
	return &Error{Kind: ErrorUpstream, Backend: kind, StatusCode: status, Body: body}
}

// TransportError reports a failed exchange with the provider.
func TransportError(kind Kind, err error) *Error {
	return &Error{Kind: ErrorTransport, Backend: kind, Err: err}
}

// KindOf returns the error kind of err, if it wraps a backend Error.
func KindOf(err error) (ErrorKind, bool) {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Kind, true
	}
	return "", false
}
