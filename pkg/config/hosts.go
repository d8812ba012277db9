package config

import "strings"

const (
	// CloudHost is the Bitbucket Cloud web host.
	CloudHost = "bitbucket.org"
	// CloudAPIHost is the Bitbucket Cloud API host.
	CloudAPIHost = "api.bitbucket.org"

	CloudAPIVersion  = "2.0"
	ServerAPIVersion = "1.0"
)

// HostConfig is the per-host entry of the config file.
type HostConfig struct {
	Host             string `yaml:"host"`
	User             string `yaml:"user,omitempty"`
	DefaultWorkspace string `yaml:"default_workspace,omitempty"`
	DefaultProject   string `yaml:"default_project,omitempty"`
	APIVersion       string `yaml:"api_version,omitempty"`
}

// IsCloud reports whether the entry targets Bitbucket Cloud.
func (h HostConfig) IsCloud() bool {
	return IsCloudHost(h.Host)
}

// IsCloudHost reports whether host is one of the Bitbucket Cloud hostnames.
// The comparison is exact; normalize user input with NormalizeHost first.
func IsCloudHost(host string) bool {
	return host == CloudHost || host == CloudAPIHost
}

// CloudHostConfig returns the entry recorded after a Cloud login.
func CloudHostConfig() HostConfig {
	return HostConfig{Host: CloudHost, APIVersion: CloudAPIVersion}
}

// NormalizeHost trims whitespace, drops an http(s) scheme and one trailing
// slash, and lowercases the result.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	return strings.ToLower(host)
}

// HostKey returns the key credentials and host entries are stored under: the
// normalized host without any path (git.example.com/bitbucket -> git.example.com).
func HostKey(host string) string {
	host = NormalizeHost(host)
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	return host
}
