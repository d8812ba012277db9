package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	// DefaultClientID is the OAuth consumer registered for bb.
	DefaultClientID = "Pyydmsf5kLpEqs24kw"
	// AuthorizeURL is the Bitbucket Cloud authorization endpoint.
	AuthorizeURL = "https://bitbucket.org/site/oauth2/authorize"
	// TokenURL is the Bitbucket Cloud token endpoint.
	TokenURL = "https://bitbucket.org/site/oauth2/access_token"
	// DefaultRedirectURL is the loopback redirect registered with the consumer.
	DefaultRedirectURL = "http://localhost:8085/callback"
	// DefaultAuthorizationTimeout bounds how long Login waits for the callback.
	DefaultAuthorizationTimeout = 300 * time.Second
)

// DefaultScopes are requested when OAuthConfig.Scopes is empty.
var DefaultScopes = []string{
	"repository",
	"repository:write",
	"pullrequest",
	"pullrequest:write",
	"account",
	"pipeline",
	"pipeline:write",
	"webhook",
}

// ErrAuthorizationTimeout is returned by Login when no authorization code
// arrives before the configured timeout.
var ErrAuthorizationTimeout = errors.New("authorization timed out waiting for the browser callback, please try again")

// ExchangeError reports a failed call to the token endpoint. Status and Body are
// set when the endpoint answered with a non-2xx response.
type ExchangeError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token %s failed (%d): %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("token %s failed: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// FlowState is a step of the login state machine.
type FlowState int

const (
	StateIdle FlowState = iota
	StateAwaitingAuthorization
	StateAwaitingCallback
	StateExchangingCode
	StateComplete
	StateFailed
	StateTimedOut
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateExchangingCode:
		return "exchanging_code"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// OAuthConfig configures an OAuthFlow. Zero fields fall back to the defaults
// returned by DefaultOAuthConfig.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration

	// HTTPClient is used for token endpoint requests.
	HTTPClient *http.Client
	// Browser opens the authorization URL.
	Browser BrowserOpener
	// Output receives user instructions.
	Output io.Writer
}

// DefaultOAuthConfig returns the configuration for the public bb consumer.
func DefaultOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:    DefaultClientID,
		RedirectURL: DefaultRedirectURL,
		Scopes:      append([]string(nil), DefaultScopes...),
		AuthURL:     AuthorizeURL,
		TokenURL:    TokenURL,
		Timeout:     DefaultAuthorizationTimeout,
	}
}

// TokenResponse is the decoded token endpoint response.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the lifetime in seconds; zero when the server did not report one.
	ExpiresIn int64
	Scopes    []string
}

// Credential converts the response into an OAuth credential whose expiry is
// computed relative to now.
func (r *TokenResponse) Credential(now time.Time) *Credential {
	var expiresAt time.Time
	if r.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return NewOAuthToken(r.AccessToken, r.RefreshToken, expiresAt)
}

// OAuthFlow runs the Authorization Code with PKCE login and token refresh
// against the configured endpoints. A flow performs one login attempt at a time.
type OAuthFlow struct {
	config OAuthConfig

	mu    sync.Mutex
	state FlowState
}

// NewOAuthFlow creates a flow, filling unset fields of cfg with defaults.
func NewOAuthFlow(cfg OAuthConfig) *OAuthFlow {
	defaults := DefaultOAuthConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = defaults.RedirectURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Browser == nil {
		cfg.Browser = &SystemBrowserOpener{}
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	return &OAuthFlow{config: cfg}
}

// Config returns the effective configuration.
func (f *OAuthFlow) Config() OAuthConfig {
	return f.config
}

// State returns the current step of the login state machine.
func (f *OAuthFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *OAuthFlow) setState(s FlowState) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	log.Debugf("OAuth flow: %s -> %s", prev, s)
}

// Login runs a complete authorization attempt: it binds the loopback listener,
// opens the browser, waits for a single callback and exchanges the code.
func (f *OAuthFlow) Login(ctx context.Context) (*TokenResponse, error) {
	f.setState(StateIdle)

	challenge, err := NewPKCEChallenge()
	if err != nil {
		f.setState(StateFailed)
		return nil, err
	}

	state, err := newState(rand.Reader)
	if err != nil {
		f.setState(StateFailed)
		return nil, err
	}

	server, err := ListenCallback(f.config.RedirectURL)
	if err != nil {
		f.setState(StateFailed)
		return nil, err
	}
	defer func() { _ = server.Close() }()

	redirectURL := redirectURLWithPort(f.config.RedirectURL, server.Port())
	authURL := f.authCodeURL(challenge, state, redirectURL)
	server.ExpectState(state)
	server.Start()

	f.setState(StateAwaitingAuthorization)
	if err := OpenBrowserWithFallback(f.config.Browser, authURL, f.config.Output); err != nil {
		log.Warnf("could not open browser: %v", err)
	}

	f.setState(StateAwaitingCallback)
	_, _ = fmt.Fprintln(f.config.Output, "Waiting for authorization...")

	code, err := f.waitForCode(ctx, server)
	if err != nil {
		return nil, err
	}

	f.setState(StateExchangingCode)
	resp, err := f.exchange(ctx, code, challenge.Verifier, redirectURL)
	if err != nil {
		f.setState(StateFailed)
		return nil, err
	}

	f.setState(StateComplete)
	return resp, nil
}

// waitForCode races the callback against ctx and the authorization timeout.
func (f *OAuthFlow) waitForCode(ctx context.Context, server *CallbackServer) (string, error) {
	timer := time.NewTimer(f.config.Timeout)
	defer timer.Stop()

	select {
	case code := <-server.Code():
		return code, nil
	case <-timer.C:
		f.setState(StateTimedOut)
		return "", ErrAuthorizationTimeout
	case <-ctx.Done():
		f.setState(StateFailed)
		return "", fmt.Errorf("authorization cancelled: %w", ctx.Err())
	}
}

// AuthorizationURL builds the authorize endpoint URL for challenge and state
// using the configured redirect URI. Login generates a fresh state per attempt
// and the callback rejects codes carrying any other state.
func (f *OAuthFlow) AuthorizationURL(challenge *PKCEChallenge, state string) string {
	return f.authCodeURL(challenge, state, f.config.RedirectURL)
}

func (f *OAuthFlow) authCodeURL(challenge *PKCEChallenge, state, redirectURL string) string {
	return f.oauth2Config(redirectURL).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code and its PKCE verifier for tokens.
func (f *OAuthFlow) Exchange(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	return f.exchange(ctx, code, verifier, f.config.RedirectURL)
}

func (f *OAuthFlow) exchange(ctx context.Context, code, verifier, redirectURL string) (*TokenResponse, error) {
	tok, err := f.oauth2Config(redirectURL).Exchange(f.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, newExchangeError("exchange", err)
	}
	return convertOAuth2Token(tok), nil
}

// Refresh obtains a new access token using refreshToken. It needs neither the
// browser nor the loopback listener. When the response omits a refresh token
// the one passed in is carried over.
func (f *OAuthFlow) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token not available")
	}

	src := f.oauth2Config(f.config.RedirectURL).TokenSource(f.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, newExchangeError("refresh", err)
	}
	return convertOAuth2Token(tok), nil
}

// oauth2Config authenticates with HTTP Basic when a client secret is set and
// sends client_id in the body otherwise.
func (f *OAuthFlow) oauth2Config(redirectURL string) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if f.config.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}

	return &oauth2.Config{
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       f.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.config.AuthURL,
			TokenURL:  f.config.TokenURL,
			AuthStyle: style,
		},
	}
}

func (f *OAuthFlow) clientContext(ctx context.Context) context.Context {
	if f.config.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.config.HTTPClient)
}

func newExchangeError(op string, err error) *ExchangeError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &ExchangeError{Op: op, Status: re.Response.StatusCode, Body: string(re.Body), Err: err}
	}
	return &ExchangeError{Op: op, Err: err}
}

// convertOAuth2Token converts an oauth2.Token into a TokenResponse. Bitbucket
// reports granted scopes under "scopes"; the RFC 6749 "scope" key is accepted too.
func convertOAuth2Token(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
	if resp.TokenType == "" {
		resp.TokenType = "bearer"
	}

	if v, ok := tok.Extra("expires_in").(float64); ok && v > 0 {
		resp.ExpiresIn = int64(v)
	}

	for _, key := range []string{"scopes", "scope"} {
		if s, ok := tok.Extra(key).(string); ok && s != "" {
			resp.Scopes = strings.Fields(s)
			break
		}
	}

	return resp
}

// redirectURLWithPort substitutes the bound port when the redirect URL asked for
// an ephemeral one.
func redirectURLWithPort(redirectURL string, port int) string {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Port() != "0" {
		return redirectURL
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	return u.String()
}
