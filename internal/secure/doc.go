// Package secure provides memory-safe handling of sensitive data.
//
// This package wraps the memguard library to provide secure storage for
// Conjur credentials in memory. It ensures that sensitive data is:
//
//   - Encrypted at rest in memory (XSalsa20Poly1305)
//   - Protected from swapping via mlock
//   - Securely wiped when no longer needed
//
// # Usage
//
// Create a secure buffer from an API key:
//
//	buf, err := secure.NewSecureBuffer(apiKey) // apiKey is wiped
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	send(locked.Bytes())
//
// Plain byte slices that held secret material are cleared with Wipe.
//
// # Platform Behavior
//
// Memory locking behavior varies by platform:
//
//   - Linux: Requires RLIMIT_MEMLOCK to be set appropriately
//   - macOS: Works out of the box
//   - Windows: Uses VirtualLock
//
// It does NOT protect against:
//
//   - Attackers with root access to the running process
//   - Copies made by the Go runtime or the HTTP stack while a request is in flight
//   - Immutable Go strings holding a secret
package secure
