package provider

import (
	"context"
	"time"
)

// Provider defines the interface that all secret store providers must implement.
//
// Implementations must be thread-safe as multiple goroutines may call these
// methods concurrently.
//
// Example usage:
//
//	if err := p.Validate(ctx); err != nil {
//	    return fmt.Errorf("provider validation failed: %w", err)
//	}
//
//	secret, err := p.Resolve(ctx, provider.Reference{Provider: "conjur", Key: "db/password"})
//	if err != nil {
//	    return fmt.Errorf("failed to resolve secret: %w", err)
//	}
type Provider interface {
	// Name returns the provider's identifier, as used in the registry.
	Name() string

	// Resolve retrieves a secret value from the provider.
	//
	// Implementations should support context cancellation, return
	// NotFoundError for missing secrets and AuthError for rejected
	// credentials.
	Resolve(ctx context.Context, ref Reference) (SecretValue, error)

	// Describe returns metadata about a secret without retrieving its value.
	// A missing secret is reported with Exists set to false, not an error.
	Describe(ctx context.Context, ref Reference) (Metadata, error)

	// Capabilities returns the features this provider supports.
	Capabilities() Capabilities

	// Validate checks that the provider is configured and can authenticate.
	Validate(ctx context.Context) error
}

// Reference identifies a secret in a provider.
type Reference struct {
	// Provider is the name of the provider holding the secret.
	Provider string

	// Key is the secret identifier, for Conjur the variable name.
	Key string

	// Version selects a specific version. Empty means the current one.
	Version string
}

// SecretValue is a resolved secret.
type SecretValue struct {
	Value string

	// Version is the version that was returned, if the store reports one.
	Version string

	// UpdatedAt is when the value was retrieved.
	UpdatedAt time.Time

	// Metadata holds provider-specific details, such as the full resource id.
	Metadata map[string]string
}

// Metadata describes a secret without its value.
type Metadata struct {
	Exists    bool
	Version   string
	UpdatedAt time.Time
	Size      int
	Type      string
	Tags      map[string]string
}

// Capabilities describes the features a provider supports.
type Capabilities struct {
	SupportsVersioning bool
	SupportsMetadata   bool
	SupportsBinary     bool

	// RequiresAuth indicates if the provider requires authentication to access secrets.
	RequiresAuth bool

	// AuthMethods lists the authentication methods supported, for example
	// "api_key" or "password".
	AuthMethods []string
}

// NotFoundError indicates that a requested secret does not exist in the provider.
type NotFoundError struct {
	// Provider is the name of the provider where the secret was not found.
	Provider string

	// Key is the secret identifier that could not be found.
	Key string

	// Err is the underlying client error, if any.
	Err error
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	return "secret not found: " + e.Key + " in " + e.Provider
}

func (e NotFoundError) Unwrap() error {
	return e.Err
}

// AuthError indicates that authentication to the provider failed.
type AuthError struct {
	// Provider is the name of the provider that failed authentication.
	Provider string

	// Message provides details about the authentication failure.
	Message string

	// Err is the underlying client error, if any.
	Err error
}

// Error implements the error interface.
func (e AuthError) Error() string {
	return "authentication failed for " + e.Provider + ": " + e.Message
}

func (e AuthError) Unwrap() error {
	return e.Err
}
