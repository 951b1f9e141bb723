package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/conjur-go/pkg/conjur"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ConjurError wraps a client failure with a suggestion for the user. The
// underlying error stays reachable with errors.Is and errors.As.
func ConjurError(operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("conjur %s failed", operation),
		Details:    err.Error(),
		Suggestion: conjurSuggestion(err),
		Err:        err,
	}
}

func conjurSuggestion(err error) string {
	switch {
	case errors.Is(err, conjur.ErrNoAuthenticator):
		return "Run 'conjur login' or set CONJUR_AUTHN_LOGIN and CONJUR_AUTHN_API_KEY"
	case errors.Is(err, conjur.ErrAuthentication):
		return "Check the login name and API key, or run 'conjur login' again"
	case errors.Is(err, conjur.ErrTrust):
		return "Add the Conjur CA certificate to cert_file, then verify it with 'conjur certs check'"
	case errors.Is(err, conjur.ErrDeserialization):
		return "The server answered with data the client could not read. Check appliance_url points at Conjur"
	case conjur.IsNotFound(err):
		return "Verify the variable or policy name. List variables with 'conjur list'"
	case conjur.IsUnauthorized(err):
		return "The role lacks permission for this resource. Check the policy grants"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check your network connection or raise timeout_ms"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check appliance_url and your network"
	}
	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var configErr ConfigError
	if errors.As(err, &configErr) {
		return err
	}

	var apiErr *conjur.APIError
	if errors.As(err, &apiErr) || errors.Is(err, conjur.ErrNoAuthenticator) || errors.Is(err, conjur.ErrTrust) {
		op := "request"
		if apiErr != nil {
			op = apiErr.Op
		}
		return ConjurError(op, err)
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
