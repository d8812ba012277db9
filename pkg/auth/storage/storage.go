// Package storage persists one credential string per host.
package storage

import (
	"context"
	"fmt"
)

// DefaultService is the keyring service under which bb stores credentials.
const DefaultService = "bitbucket-cli"

// Type selects a CredentialStore implementation.
type Type string

const (
	TypeKeyring Type = "keyring"
	TypeFile    Type = "file"
	TypeMemory  Type = "memory"
)

// CredentialStore keeps one secret per host. Get reports absence with
// found == false and a nil error; Delete of an absent host succeeds.
type CredentialStore interface {
	Store(ctx context.Context, host, value string) error
	Get(ctx context.Context, host string) (value string, found bool, err error)
	Delete(ctx context.Context, host string) error
}

// Config selects and parameterizes a store.
type Config struct {
	// Type defaults to TypeKeyring.
	Type Type
	// Service is the keyring service, defaulting to DefaultService.
	Service string
	// Path is the location of the file store; empty selects the XDG default.
	Path string
}

// New creates the store described by cfg.
func New(cfg Config) (CredentialStore, error) {
	switch cfg.Type {
	case "", TypeKeyring:
		return NewKeyringStore(cfg.Service), nil
	case TypeFile:
		return NewFileStore(cfg.Path), nil
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported credential store type: %s", cfg.Type)
	}
}
