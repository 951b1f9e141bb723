package providers

import (
	"errors"

	"github.com/systmms/conjur-go/pkg/conjur"
	"github.com/systmms/conjur-go/pkg/provider"
)

// ToNotFoundError converts a client error to the standard NotFoundError
func ToNotFoundError(providerName, key string, err error) provider.NotFoundError {
	return provider.NotFoundError{
		Provider: providerName,
		Key:      key,
		Err:      err,
	}
}

// ToAuthError converts a client error to the standard AuthError
func ToAuthError(providerName string, err error) provider.AuthError {
	return provider.AuthError{
		Provider: providerName,
		Message:  err.Error(),
		Err:      err,
	}
}

// toProviderError maps Conjur client errors onto the provider error types.
// Anything else is returned unchanged.
func toProviderError(providerName, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case conjur.IsNotFound(err):
		return ToNotFoundError(providerName, key, err)
	case errors.Is(err, conjur.ErrNoAuthenticator),
		errors.Is(err, conjur.ErrAuthentication),
		conjur.IsUnauthorized(err):
		return ToAuthError(providerName, err)
	}
	return err
}
