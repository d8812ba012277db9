package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bbcli/bb/pkg/auth"
	"github.com/bbcli/bb/pkg/auth/storage"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (BB_CLIENT_ID, ...).
const EnvPrefix = "BB"

// Settings are the runtime knobs of the login and storage layers.
type Settings struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	KeyringService  string
	CredentialStore storage.Type
	OAuthTimeout    time.Duration
}

// LoadSettings reads settings from the environment, falling back to defaults.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("client_id", auth.DefaultClientID)
	v.SetDefault("client_secret", "")
	v.SetDefault("redirect_uri", auth.DefaultRedirectURL)
	v.SetDefault("keyring_service", storage.DefaultService)
	v.SetDefault("credential_store", string(storage.TypeKeyring))
	v.SetDefault("oauth_timeout", auth.DefaultAuthorizationTimeout)

	s := &Settings{
		ClientID:        v.GetString("client_id"),
		ClientSecret:    v.GetString("client_secret"),
		RedirectURI:     v.GetString("redirect_uri"),
		KeyringService:  v.GetString("keyring_service"),
		CredentialStore: storage.Type(strings.ToLower(v.GetString("credential_store"))),
		OAuthTimeout:    v.GetDuration("oauth_timeout"),
	}

	switch s.CredentialStore {
	case storage.TypeKeyring, storage.TypeFile, storage.TypeMemory:
	default:
		return nil, fmt.Errorf("invalid %s_CREDENTIAL_STORE %q: must be keyring, file or memory", EnvPrefix, s.CredentialStore)
	}
	if s.OAuthTimeout <= 0 {
		return nil, fmt.Errorf("invalid %s_OAUTH_TIMEOUT: must be a positive duration", EnvPrefix)
	}

	return s, nil
}

// OAuthConfig returns the OAuth configuration for these settings.
func (s *Settings) OAuthConfig() auth.OAuthConfig {
	cfg := auth.DefaultOAuthConfig()
	cfg.ClientID = s.ClientID
	cfg.ClientSecret = s.ClientSecret
	cfg.RedirectURL = s.RedirectURI
	cfg.Timeout = s.OAuthTimeout
	return cfg
}

// StorageConfig returns the credential store configuration for these settings.
func (s *Settings) StorageConfig() storage.Config {
	return storage.Config{Type: s.CredentialStore, Service: s.KeyringService}
}
