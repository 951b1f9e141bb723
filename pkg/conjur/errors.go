package conjur

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is, except ErrNoAuthenticator which is a usage error.
var (
	ErrAuthentication  = errors.New("conjur authentication failed")
	ErrTransport       = errors.New("conjur transport failure")
	ErrDeserialization = errors.New("conjur response could not be decoded")
	ErrTrust           = errors.New("conjur certificate chain rejected")

	ErrNoAuthenticator = errors.New("conjur client has no authenticator")
)

// APIError wraps a failed Conjur request with context
type APIError struct {
	Op         string // Operation: "authenticate", "login", "read", "write", "list", "count", "load"
	StatusCode int
	Message    string
	Kind       error // One of the package error kinds
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("conjur %s error (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("conjur %s error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("conjur %s error: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsNotFound returns true if the server answered 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsUnauthorized returns true if the server refused the credentials or token
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// transportKind classifies a failed round trip. A rejected certificate
// chain reaches us through the HTTP client's error chain.
func transportKind(err error) error {
	if errors.Is(err, ErrTrust) {
		return ErrTrust
	}
	return ErrTransport
}
