// Package conjur is a client for the Conjur secrets-management REST API.
//
// The package covers four concerns:
//
//   - Authentication: an APIKeyAuthenticator trades a login name and API key
//     for short-lived access tokens and caches one token at a time.
//   - Enumeration: ListResources walks resource listings lazily, one page
//     of PageSize entries at a time.
//   - Secrets: Variable reads and writes secret values and wipes the
//     caller's buffer after every write.
//   - Trust: ChainVerifier accepts a server whose chain ends in a root the
//     caller supplied, but only when that is the chain's sole defect.
//
// # Usage
//
//	roots := conjur.NewRootSet()
//	if _, err := roots.ImportPEM("/etc/conjur.pem"); err != nil {
//	    return err
//	}
//
//	client, err := conjur.NewClient(conjur.Options{
//	    ApplianceURL: "https://conjur.example.com",
//	    Account:      "myorg",
//	    ExtraRoots:   roots,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := client.SetAPIKey("host/jenkins", apiKey); err != nil {
//	    return err
//	}
//
//	value, err := client.Variable("prod/db/password").Value(ctx)
//
// # Error Handling
//
// Failures are reported as *APIError values that match one of
// ErrAuthentication, ErrTransport, ErrDeserialization or ErrTrust with
// errors.Is. Nothing is retried; a failed page ends a listing.
//
// # Threading and Concurrency
//
// A configured Client and its Authenticator are safe for concurrent use.
// Concurrent callers that find the cached token expired share a single
// authenticate request. ResourceIterator values are single-goroutine.
package conjur
