package storage

import (
	"context"
	"path/filepath"

	"github.com/adrg/xdg"
	log "github.com/sirupsen/logrus"
)

// FileStore is the placeholder for a credential file used where no keyring is
// available. No encryption scheme has been chosen for it yet, so it persists
// nothing: Store and Delete succeed without effect and Get never finds a value.
type FileStore struct {
	path string
}

// NewFileStore creates the stub store. An empty path selects
// $XDG_CONFIG_HOME/bb/credentials.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = filepath.Join(xdg.ConfigHome, "bb", "credentials")
	}
	return &FileStore{path: path}
}

// Path returns the location the store would use.
func (f *FileStore) Path() string {
	return f.path
}

// Store does not persist value.
func (f *FileStore) Store(_ context.Context, host, _ string) error {
	log.Debugf("file credential store is not implemented; credential for %s was not written to %s", host, f.path)
	return nil
}

// Get never finds a value.
func (f *FileStore) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

// Delete has nothing to remove.
func (f *FileStore) Delete(_ context.Context, _ string) error {
	return nil
}
