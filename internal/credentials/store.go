// Package credentials keeps Conjur API keys in the operating system keyring
// so that `conjur login` only has to be run once per machine.
package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/systmms/conjur-go/internal/secure"
)

// Service is the keyring service name API keys are stored under.
const Service = "conjur-go"

// ErrNotFound is returned when no API key is stored for a login.
var ErrNotFound = errors.New("no stored API key")

// Store persists API keys per appliance and login.
type Store interface {
	Get(applianceURL, login string) ([]byte, error)
	Set(applianceURL, login string, apiKey []byte) error
	Delete(applianceURL, login string) error
}

// KeyringStore is a Store backed by the OS keyring (Keychain, Secret
// Service or Windows Credential Manager).
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store using the default service name.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: Service}
}

// Get returns the stored API key. The caller should wipe it when done.
func (s *KeyringStore) Get(applianceURL, login string) ([]byte, error) {
	secret, err := keyring.Get(s.service, entryName(applianceURL, login))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return []byte(secret), nil
}

// Set stores apiKey, replacing any previous value, and wipes the slice.
func (s *KeyringStore) Set(applianceURL, login string, apiKey []byte) error {
	defer secure.Wipe(apiKey)

	if len(apiKey) == 0 {
		return fmt.Errorf("refusing to store an empty API key for %s", login)
	}
	if err := keyring.Set(s.service, entryName(applianceURL, login), string(apiKey)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// Delete removes the stored API key. Deleting a missing entry is not an error.
func (s *KeyringStore) Delete(applianceURL, login string) error {
	err := keyring.Delete(s.service, entryName(applianceURL, login))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}

func entryName(applianceURL, login string) string {
	return login + "@" + applianceURL
}

var _ Store = (*KeyringStore)(nil)
