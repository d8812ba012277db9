package auth

import (
	"sort"
	"sync"
)

// Profile names an account on a host. Secrets are not part of a profile; the
// credential for a profile lives in a credential store under its host.
type Profile struct {
	Name           string `yaml:"name" json:"name"`
	Host           string `yaml:"host" json:"host"`
	Username       string `yaml:"username,omitempty" json:"username,omitempty"`
	CredentialKind Kind   `yaml:"auth_type" json:"auth_type"`
	IsDefault      bool   `yaml:"default,omitempty" json:"default,omitempty"`
}

// ProfileManager is the registry of named profiles and the default pointer.
type ProfileManager struct {
	mu          sync.RWMutex
	profiles    map[string]Profile
	defaultName string
}

// NewProfileManager creates a manager holding profiles, added in order.
func NewProfileManager(profiles ...Profile) *ProfileManager {
	m := &ProfileManager{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		m.Add(p)
	}
	return m
}

// Add inserts or replaces the profile with the same name. A profile marked
// IsDefault becomes the default; the previous default keeps its own flag.
func (m *ProfileManager) Add(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IsDefault {
		m.defaultName = p.Name
	}
	m.profiles[p.Name] = p
}

// Remove deletes a profile. Removing the default clears the default without
// promoting another profile. Removing an unknown name is a no-op.
func (m *ProfileManager) Remove(name string) (Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.defaultName == name {
		m.defaultName = ""
	}
	p, ok := m.profiles[name]
	delete(m.profiles, name)
	return p, ok
}

// Get returns the profile called name.
func (m *ProfileManager) Get(name string) (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[name]
	return p, ok
}

// List returns all profiles sorted by name.
func (m *ProfileManager) List() []Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedLocked()
}

// DefaultProfile returns the profile the default pointer refers to.
func (m *ProfileManager) DefaultProfile() (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.defaultName == "" {
		return Profile{}, false
	}
	p, ok := m.profiles[m.defaultName]
	return p, ok
}

// DefaultName returns the name of the default profile, or "".
func (m *ProfileManager) DefaultName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// SetDefault points the default at name. It returns false and leaves the
// default unchanged when no such profile exists.
func (m *ProfileManager) SetDefault(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[name]; !ok {
		return false
	}
	m.defaultName = name
	return true
}

// ForHost returns the first profile, in name order, whose host equals host
// exactly. The comparison is case-sensitive.
func (m *ProfileManager) ForHost(host string) (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.sortedLocked() {
		if p.Host == host {
			return p, true
		}
	}
	return Profile{}, false
}

func (m *ProfileManager) sortedLocked() []Profile {
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
