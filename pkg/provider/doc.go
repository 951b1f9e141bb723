// Package provider defines the interface secret stores are read through.
//
// A Provider hides a secret storage system behind a small uniform API:
//   - Resolve fetches a secret value
//   - Describe reports metadata without fetching the value
//   - Validate checks configuration and connectivity
//   - Capabilities reports what the store supports
//
// The Conjur implementation lives in internal/providers and is built from
// a provider registry so that commands never construct clients directly.
//
// # Error Handling
//
// Providers return the error types defined here where they apply:
//   - NotFoundError for missing secrets
//   - AuthError for rejected credentials
//
// Other failures are returned wrapped, so callers can still reach the
// underlying client error with errors.Is and errors.As.
//
// # Security Considerations
//
// Providers must never log secret values (use logging.Secret) and must
// honour context cancellation.
//
// # Threading and Concurrency
//
// Provider implementations must be safe for concurrent use.
package provider
