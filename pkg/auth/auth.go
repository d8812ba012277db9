// Package auth provides the credential model and login flows for bb.
//
// A Credential is a closed tagged union over the four authentication methods the
// two platform dialects accept:
//
//   - OAuth token: Bitbucket Cloud access token with optional refresh token and expiry
//   - App password: Bitbucket Cloud username + app password (HTTP Basic)
//   - Personal access token: Bitbucket Server/DC bearer token
//   - Basic: username + password (HTTP Basic), kept for older Server installs
//
// Every variant knows how to inject itself into an HTTP request, whether it has
// expired and whether it can be refreshed:
//
//	cred := auth.NewOAuthToken("access", "refresh", time.Now().Add(time.Hour))
//	if cred.IsExpired() && cred.CanRefresh() {
//	    resp, _ := auth.NewOAuthFlow(auth.DefaultOAuthConfig()).Refresh(ctx, cred.RefreshToken)
//	    cred = resp.Credential(time.Now())
//	}
//	_ = cred.Apply(req)
//
// # OAuth2 Authorization Code with PKCE
//
// OAuthFlow runs a single login attempt: it generates a PKCE challenge, binds a
// loopback listener on the redirect URI port, opens the system browser, waits for
// exactly one callback and exchanges the code at the token endpoint:
//
//	flow := auth.NewOAuthFlow(auth.DefaultOAuthConfig())
//	resp, err := flow.Login(ctx)
//
// # Storage
//
// Credentials are persisted as strings (see Credential.Marshal and ParseCredential)
// by the stores in the storage subpackage, one secret per host.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// Kind identifies which variant of Credential is active.
type Kind string

const (
	// KindOAuth is an OAuth2 access token (Cloud).
	KindOAuth Kind = "oauth"
	// KindAppPassword is a Cloud app password used with HTTP Basic.
	KindAppPassword Kind = "app_password"
	// KindPAT is a Server/DC personal access token.
	KindPAT Kind = "pat"
	// KindBasic is a plain username/password pair.
	KindBasic Kind = "basic"
)

// String returns a human readable label for the kind.
func (k Kind) String() string {
	switch k {
	case KindOAuth:
		return "OAuth"
	case KindAppPassword:
		return "App Password"
	case KindPAT:
		return "Personal Access Token"
	case KindBasic:
		return "Basic"
	default:
		return string(k)
	}
}

// Credential is an authentication method. Only the fields belonging to Kind are
// meaningful; use the New* constructors to build one.
type Credential struct {
	Kind Kind `json:"kind"`

	// OAuth fields.
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`

	// App password and Basic fields.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Personal access token field.
	Token string `json:"token,omitempty"`
}

// NewOAuthToken creates an OAuth credential. refresh may be empty and a zero
// expiresAt means the expiry is unknown.
func NewOAuthToken(access, refresh string, expiresAt time.Time) *Credential {
	return &Credential{
		Kind:         KindOAuth,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
}

// NewAppPassword creates a Cloud app password credential.
func NewAppPassword(username, password string) *Credential {
	return &Credential{Kind: KindAppPassword, Username: username, Password: password}
}

// NewPersonalAccessToken creates a Server/DC personal access token credential.
func NewPersonalAccessToken(token string) *Credential {
	return &Credential{Kind: KindPAT, Token: token}
}

// NewBasic creates a username/password credential.
func NewBasic(username, password string) *Credential {
	return &Credential{Kind: KindBasic, Username: username, Password: password}
}

// Apply sets exactly one Authorization header on req: Bearer for OAuth tokens and
// personal access tokens, Basic for app passwords and Basic credentials.
func (c *Credential) Apply(req *http.Request) error {
	if c == nil {
		return fmt.Errorf("credential is nil")
	}

	switch c.Kind {
	case KindOAuth:
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	case KindPAT:
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case KindAppPassword, KindBasic:
		req.SetBasicAuth(c.Username, c.Password)
	default:
		return fmt.Errorf("unsupported credential kind: %s", c.Kind)
	}

	return nil
}

// IsExpired reports whether the credential is known to have expired.
// Only OAuth tokens with a recorded expiry can expire; every other variant, and
// OAuth tokens without an expiry, are treated as never expiring.
func (c *Credential) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

// IsExpiredAt is IsExpired evaluated at now.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	if c == nil || c.Kind != KindOAuth || c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Before(now)
}

// CanRefresh reports whether the credential is an OAuth token carrying a refresh token.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.Kind == KindOAuth && c.RefreshToken != ""
}

// Secret returns the value a user would paste back into the tool: the bearer
// token for OAuth and PAT credentials, the password otherwise.
func (c *Credential) Secret() string {
	switch c.Kind {
	case KindOAuth:
		return c.AccessToken
	case KindPAT:
		return c.Token
	default:
		return c.Password
	}
}

// Validate checks that the fields of exactly the active variant are populated.
func (c *Credential) Validate() error {
	if c == nil {
		return fmt.Errorf("credential is nil")
	}

	switch c.Kind {
	case KindOAuth:
		if c.AccessToken == "" {
			return fmt.Errorf("access_token is required for oauth credentials")
		}
		if c.Username != "" || c.Password != "" || c.Token != "" {
			return fmt.Errorf("oauth credential carries fields of another kind")
		}
	case KindPAT:
		if c.Token == "" {
			return fmt.Errorf("token is required for personal access tokens")
		}
		if c.AccessToken != "" || c.RefreshToken != "" || c.Username != "" || c.Password != "" {
			return fmt.Errorf("personal access token carries fields of another kind")
		}
	case KindAppPassword, KindBasic:
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("username and password are required for %s credentials", c.Kind)
		}
		if c.AccessToken != "" || c.RefreshToken != "" || c.Token != "" {
			return fmt.Errorf("%s credential carries fields of another kind", c.Kind)
		}
	case "":
		return fmt.Errorf("credential kind is required")
	default:
		return fmt.Errorf("unsupported credential kind: %s", c.Kind)
	}

	return nil
}

// Marshal serializes the credential into the string kept by a credential store.
func (c *Credential) Marshal() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credential: %w", err)
	}
	return string(data), nil
}

// ParseCredential decodes a stored credential. Values that are not JSON objects
// are raw bearer tokens written by older versions and decode as personal access tokens.
func ParseCredential(value string) (*Credential, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("stored credential is empty")
	}

	if !strings.HasPrefix(value, "{") {
		return NewPersonalAccessToken(value), nil
	}

	var cred Credential
	if err := json.Unmarshal([]byte(value), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stored credential: %w", err)
	}

	return &cred, nil
}

// ValidateTokenFormat reports whether s looks like a token: non-empty with no whitespace.
func ValidateTokenFormat(s string) bool {
	return s != "" && strings.IndexFunc(s, unicode.IsSpace) < 0
}
