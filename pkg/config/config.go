// Package config handles the bb configuration file and runtime settings.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adrg/xdg"
	"github.com/bbcli/bb/pkg/auth"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the XDG directories used by bb.
	AppName = "bb"
	// FileName is the config file name inside the config directory.
	FileName = "config.yaml"
	// PathEnv overrides the config file location.
	PathEnv = "BB_CONFIG"
)

// LockTimeout is the maximum time to wait for the config lock. If exceeded,
// the save proceeds without the lock rather than hanging the CLI.
const LockTimeout = 100 * time.Millisecond

// Config is the persisted configuration.
type Config struct {
	Core           CoreConfig            `yaml:"core"`
	Hosts          map[string]HostConfig `yaml:"hosts,omitempty"`
	Profiles       []auth.Profile        `yaml:"profiles,omitempty"`
	DefaultProfile string                `yaml:"default_profile,omitempty"`
}

// CoreConfig holds general preferences.
type CoreConfig struct {
	Editor      string `yaml:"editor,omitempty"`
	Pager       string `yaml:"pager,omitempty"`
	Browser     string `yaml:"browser,omitempty"`
	GitProtocol string `yaml:"git_protocol"`
	Prompt      string `yaml:"prompt"`
}

// Default returns an empty configuration with default preferences.
func Default() *Config {
	return &Config{
		Core: CoreConfig{
			GitProtocol: "https",
			Prompt:      "enabled",
		},
		Hosts: make(map[string]HostConfig),
	}
}

// HostConfig returns the entry stored under the key of host.
func (c *Config) HostConfig(host string) (HostConfig, bool) {
	hc, ok := c.Hosts[HostKey(host)]
	return hc, ok
}

// SetHost records hc under the key of its host.
func (c *Config) SetHost(hc HostConfig) {
	if c.Hosts == nil {
		c.Hosts = make(map[string]HostConfig)
	}
	c.Hosts[HostKey(hc.Host)] = hc
}

// RemoveHost deletes the entry for host and every profile bound to it. It
// reports whether a host entry existed.
func (c *Config) RemoveHost(host string) bool {
	key := HostKey(host)
	_, ok := c.Hosts[key]
	delete(c.Hosts, key)

	profiles := c.ProfileManager()
	for _, p := range profiles.List() {
		if HostKey(p.Host) == key {
			profiles.Remove(p.Name)
		}
	}
	c.SetProfiles(profiles)

	return ok
}

// HostKeys returns the configured host keys in sorted order.
func (c *Config) HostKeys() []string {
	keys := make([]string, 0, len(c.Hosts))
	for k := range c.Hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProfileManager builds a manager from the stored profiles. The default comes
// from DefaultProfile alone; stored IsDefault flags are ignored.
func (c *Config) ProfileManager() *auth.ProfileManager {
	m := auth.NewProfileManager()
	for _, p := range c.Profiles {
		p.IsDefault = c.DefaultProfile != "" && p.Name == c.DefaultProfile
		m.Add(p)
	}
	return m
}

// SetProfiles stores the state of m. Only the profile the default pointer
// names is saved with IsDefault set.
func (c *Config) SetProfiles(m *auth.ProfileManager) {
	def := m.DefaultName()
	c.Profiles = m.List()
	for i := range c.Profiles {
		c.Profiles[i].IsDefault = def != "" && c.Profiles[i].Name == def
	}
	c.DefaultProfile = def
}

// Get returns a core preference by key.
func (c *Config) Get(key string) (string, bool) {
	switch key {
	case "editor":
		return c.Core.Editor, c.Core.Editor != ""
	case "pager":
		return c.Core.Pager, c.Core.Pager != ""
	case "browser":
		return c.Core.Browser, c.Core.Browser != ""
	case "git_protocol":
		return c.Core.GitProtocol, true
	case "prompt":
		return c.Core.Prompt, true
	default:
		return "", false
	}
}

// Set updates a core preference. It returns false for unknown keys.
func (c *Config) Set(key, value string) bool {
	switch key {
	case "editor":
		c.Core.Editor = value
	case "pager":
		c.Core.Pager = value
	case "browser":
		c.Core.Browser = value
	case "git_protocol":
		c.Core.GitProtocol = value
	case "prompt":
		c.Core.Prompt = value
	default:
		return false
	}
	return true
}

// Store reads and writes the config file.
type Store struct {
	path string
}

// NewStore creates a store for path. An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// DefaultPath returns $BB_CONFIG, or config.yaml in the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, AppName, FileName)
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file. A missing file yields Default.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}
	if cfg.Hosts == nil {
		cfg.Hosts = make(map[string]HostConfig)
	}

	return cfg, nil
}

// Save writes cfg atomically with 0600 permissions while holding the config lock.
func (s *Store) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.Unlock() }()
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

// acquireLock returns nil without an error when the lock is not obtained
// within LockTimeout.
func (s *Store) acquireLock() (*flock.Flock, error) {
	fl := flock.New(s.path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Debugf("config lock busy, saving without it: %s", fl.Path())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock config file: %w", err)
	}
	if !locked {
		return nil, nil
	}

	return fl, nil
}
