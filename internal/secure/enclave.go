package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmptySecret is returned when a SecureBuffer is created from no data.
	// memguard refuses zero-length enclaves.
	ErrEmptySecret = errors.New("secure: secret is empty")

	// ErrDestroyed is returned by Open after Destroy.
	ErrDestroyed = errors.New("secure: buffer has been destroyed")
)

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
//
// Note: memguard.Enclave doesn't have a direct Destroy method.
// We drop the enclave reference on Destroy and rely on memguard.Purge()
// at application exit for the remaining key material.
type SecureBuffer struct {
	enclave *memguard.Enclave
	size    int
	mu      sync.RWMutex
	// destroyed tracks if this buffer has been destroyed to allow
	// idempotent Destroy() calls and prevent use after destroy
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// The input is copied into the enclave and then wiped by memguard, so the
// caller's slice holds only zeros once this returns.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptySecret
	}

	size := len(data)
	enclave := memguard.NewEnclave(data)

	return &SecureBuffer{
		enclave: enclave,
		size:    size,
	}, nil
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done
// to securely wipe the plaintext from memory.
//
// Example:
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	secret := locked.Bytes()
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}

	return s.enclave.Open()
}

// Size returns the length of the protected data in bytes.
func (s *SecureBuffer) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Destroy marks this SecureBuffer as destroyed and prevents further use.
//
// This method is idempotent - calling it multiple times is safe.
// After Destroy(), Open() returns ErrDestroyed.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}

	s.enclave = nil
	s.size = 0
	s.destroyed = true
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
