package fakes

import (
	"sync"

	"github.com/systmms/conjur-go/internal/credentials"
)

// FakeCredentialStore is an in-memory credentials.Store.
type FakeCredentialStore struct {
	// GetErr is returned by Get if set
	GetErr error

	// SetErr is returned by Set if set
	SetErr error

	mu      sync.Mutex
	entries map[string][]byte
}

// NewFakeCredentialStore creates an empty store.
func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{entries: make(map[string][]byte)}
}

// WithAPIKey stores apiKey for login at applianceURL.
func (f *FakeCredentialStore) WithAPIKey(applianceURL, login, apiKey string) *FakeCredentialStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[login+"@"+applianceURL] = []byte(apiKey)
	return f
}

// Lookup returns the stored key without going through Get.
func (f *FakeCredentialStore) Lookup(applianceURL, login string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.entries[login+"@"+applianceURL]
	return string(value), ok
}

// Get returns a copy of the stored key.
func (f *FakeCredentialStore) Get(applianceURL, login string) ([]byte, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.entries[login+"@"+applianceURL]
	if !ok {
		return nil, credentials.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of apiKey and wipes the caller's slice, as the keyring
// store does.
func (f *FakeCredentialStore) Set(applianceURL, login string, apiKey []byte) error {
	defer clear(apiKey)
	if f.SetErr != nil {
		return f.SetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[login+"@"+applianceURL] = append([]byte(nil), apiKey...)
	return nil
}

// Delete removes the stored key.
func (f *FakeCredentialStore) Delete(applianceURL, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, login+"@"+applianceURL)
	return nil
}

var _ credentials.Store = (*FakeCredentialStore)(nil)
