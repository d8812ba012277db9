package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps credentials in the OS keychain, one entry per host under
// a fixed service name.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring store for service, or DefaultService when empty.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultService
	}
	return &KeyringStore{service: service}
}

// Service returns the keyring service name.
func (k *KeyringStore) Service() string {
	return k.service
}

// Store saves value for host.
func (k *KeyringStore) Store(_ context.Context, host, value string) error {
	if err := keyring.Set(k.service, host, value); err != nil {
		return fmt.Errorf("failed to store credential in keyring: %w", err)
	}
	return nil
}

// Get loads the value for host.
func (k *KeyringStore) Get(_ context.Context, host string) (string, bool, error) {
	value, err := keyring.Get(k.service, host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to retrieve credential from keyring: %w", err)
	}
	return value, true, nil
}

// Delete removes the value for host. A missing entry is not an error.
func (k *KeyringStore) Delete(_ context.Context, host string) error {
	if err := keyring.Delete(k.service, host); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete credential from keyring: %w", err)
	}
	return nil
}

// ListHosts always returns an empty list: the keychain APIs offer no
// enumeration by service. The configured profiles are the record of which
// hosts have credentials.
func (k *KeyringStore) ListHosts(_ context.Context) ([]string, error) {
	return []string{}, nil
}
