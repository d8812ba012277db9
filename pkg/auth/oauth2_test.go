package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenResponseBody = `{"access_token":"a","refresh_token":"r","token_type":"bearer","expires_in":7200,"scopes":"repository account"}`

// tokenServer records the form of every request it receives and answers with
// status and body.
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	forms    []url.Values
	headers  []http.Header
	status   int
	response string
}

func newTokenServer(t *testing.T, status int, response string) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: status, response: response}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		ts.forms = append(ts.forms, r.PostForm)
		ts.headers = append(ts.headers, r.Header.Clone())
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_, _ = w.Write([]byte(ts.response))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) lastForm() url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.forms[len(ts.forms)-1]
}

func (ts *tokenServer) lastHeader() http.Header {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.headers[len(ts.headers)-1]
}

func testFlow(ts *tokenServer, mutate func(*OAuthConfig)) *OAuthFlow {
	cfg := OAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://127.0.0.1:0/callback",
		AuthURL:     "https://bitbucket.example.com/site/oauth2/authorize",
		TokenURL:    ts.URL + "/site/oauth2/access_token",
		HTTPClient:  ts.Client(),
		Browser:     &MockBrowserOpener{},
		Output:      &bytes.Buffer{},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewOAuthFlow(cfg)
}

// callbackBrowser simulates the user approving access: it follows the
// redirect_uri of the authorization URL with the given query.
func callbackBrowser(t *testing.T, query string) BrowserOpener {
	return BrowserOpenerFunc(func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		redirect := u.Query().Get("redirect_uri")
		state := url.QueryEscape(u.Query().Get("state"))

		go func() {
			resp, err := http.Get(redirect + "?state=" + state + "&" + query)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	})
}

func TestDefaultOAuthConfig(t *testing.T) {
	cfg := DefaultOAuthConfig()

	assert.Equal(t, DefaultClientID, cfg.ClientID)
	assert.Equal(t, "https://bitbucket.org/site/oauth2/authorize", cfg.AuthURL)
	assert.Equal(t, "https://bitbucket.org/site/oauth2/access_token", cfg.TokenURL)
	assert.Equal(t, "http://localhost:8085/callback", cfg.RedirectURL)
	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultScopes, cfg.Scopes)
	assert.Empty(t, cfg.ClientSecret)

	cfg.Scopes[0] = "changed"
	assert.Equal(t, "repository", DefaultScopes[0])
}

func TestNewOAuthFlow_Defaults(t *testing.T) {
	flow := NewOAuthFlow(OAuthConfig{ClientID: "custom"})
	cfg := flow.Config()

	assert.Equal(t, "custom", cfg.ClientID)
	assert.Equal(t, TokenURL, cfg.TokenURL)
	assert.Equal(t, DefaultRedirectURL, cfg.RedirectURL)
	assert.Equal(t, DefaultAuthorizationTimeout, cfg.Timeout)
	assert.NotNil(t, cfg.Browser)
	assert.NotNil(t, cfg.Output)
	assert.Equal(t, StateIdle, flow.State())
}

func TestOAuthFlow_AuthorizationURL(t *testing.T) {
	flow := NewOAuthFlow(OAuthConfig{ClientID: "client-id", Scopes: []string{"repository", "account"}})
	pkce, err := NewPKCEChallenge()
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthorizationURL(pkce, "xyz-state"))
	require.NoError(t, err)

	assert.Equal(t, "bitbucket.org", u.Host)
	assert.Equal(t, "/site/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, DefaultRedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, pkce.Challenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "repository account", q.Get("scope"))
	assert.Equal(t, "xyz-state", q.Get("state"))
	assert.Empty(t, q.Get("code_verifier"), "verifier must never leave the process before the exchange")
}

func TestOAuthFlow_ExchangePublicClient(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, nil)

	resp, err := flow.Exchange(context.Background(), "the-code", "the-verifier")
	require.NoError(t, err)

	form := ts.lastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, "the-verifier", form.Get("code_verifier"))
	assert.Equal(t, "http://127.0.0.1:0/callback", form.Get("redirect_uri"))
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Empty(t, form.Get("client_secret"))
	assert.Empty(t, ts.lastHeader().Get("Authorization"))

	assert.Equal(t, "a", resp.AccessToken)
}

func TestOAuthFlow_ExchangeConfidentialClient(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, func(c *OAuthConfig) { c.ClientSecret = "s3cret" })

	_, err := flow.Exchange(context.Background(), "the-code", "the-verifier")
	require.NoError(t, err)

	req := &http.Request{Header: ts.lastHeader()}
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "client-id", user)
	assert.Equal(t, "s3cret", pass)
	assert.Empty(t, ts.lastForm().Get("client_secret"))
}

func TestOAuthFlow_ExchangeTokenResponse(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, nil)

	resp, err := flow.Exchange(context.Background(), "code", "verifier")
	require.NoError(t, err)

	assert.Equal(t, "a", resp.AccessToken)
	assert.Equal(t, "r", resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(7200), resp.ExpiresIn)
	assert.Equal(t, []string{"repository", "account"}, resp.Scopes)
}

func TestOAuthFlow_ExchangeMinimalResponse(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"only","scope":"account"}`)
	flow := testFlow(ts, nil)

	resp, err := flow.Exchange(context.Background(), "code", "verifier")
	require.NoError(t, err)

	assert.Equal(t, "only", resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Zero(t, resp.ExpiresIn)
	assert.Equal(t, []string{"account"}, resp.Scopes)
}

func TestOAuthFlow_ExchangeFailure(t *testing.T) {
	body := `{"error":"invalid_grant","error_description":"The code has expired"}`
	ts := newTokenServer(t, http.StatusBadRequest, body)
	flow := testFlow(ts, nil)

	_, err := flow.Exchange(context.Background(), "code", "verifier")
	require.Error(t, err)

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "exchange", exErr.Op)
	assert.Equal(t, http.StatusBadRequest, exErr.Status)
	assert.Equal(t, body, exErr.Body)
	assert.Contains(t, err.Error(), "400")
}

func TestOAuthFlow_ExchangeUnreachable(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, nil)
	ts.Close()

	_, err := flow.Exchange(context.Background(), "code", "verifier")
	require.Error(t, err)

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Zero(t, exErr.Status)
}

func TestOAuthFlow_Refresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"new","refresh_token":"r2","expires_in":3600}`)
	flow := testFlow(ts, nil)

	resp, err := flow.Refresh(context.Background(), "r1")
	require.NoError(t, err)

	form := ts.lastForm()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "r1", form.Get("refresh_token"))
	assert.Equal(t, "client-id", form.Get("client_id"))

	assert.Equal(t, "new", resp.AccessToken)
	assert.Equal(t, "r2", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestOAuthFlow_RefreshKeepsRefreshToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"new"}`)
	flow := testFlow(ts, nil)

	resp, err := flow.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.RefreshToken)
}

func TestOAuthFlow_RefreshFailure(t *testing.T) {
	ts := newTokenServer(t, http.StatusUnauthorized, `{"error":"invalid_grant"}`)
	flow := testFlow(ts, nil)

	_, err := flow.Refresh(context.Background(), "revoked")

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "refresh", exErr.Op)
	assert.Equal(t, http.StatusUnauthorized, exErr.Status)
}

func TestOAuthFlow_RefreshWithoutToken(t *testing.T) {
	flow := NewOAuthFlow(DefaultOAuthConfig())

	_, err := flow.Refresh(context.Background(), "")
	assert.Error(t, err)
}

func TestOAuthFlow_Login(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	out := &bytes.Buffer{}
	flow := testFlow(ts, func(c *OAuthConfig) {
		c.Browser = callbackBrowser(t, "code=auth-code")
		c.Output = out
	})

	resp, err := flow.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a", resp.AccessToken)
	assert.Equal(t, StateComplete, flow.State())
	assert.Contains(t, out.String(), "Waiting for authorization")

	form := ts.lastForm()
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.NotEmpty(t, form.Get("code_verifier"))
	assert.NotContains(t, form.Get("redirect_uri"), ":0/", "ephemeral port must be resolved")
}

func TestOAuthFlow_LoginBrowserFailureIsNotFatal(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	out := &bytes.Buffer{}
	approve := callbackBrowser(t, "code=auth-code")
	flow := testFlow(ts, func(c *OAuthConfig) {
		c.Output = out
		c.Browser = BrowserOpenerFunc(func(u string) error {
			_ = approve.Open(u)
			return errors.New("no display")
		})
	})

	_, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Please visit the URL above manually")
}

func TestOAuthFlow_LoginTimeout(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, func(c *OAuthConfig) { c.Timeout = 50 * time.Millisecond })

	_, err := flow.Login(context.Background())

	assert.ErrorIs(t, err, ErrAuthorizationTimeout)
	assert.Equal(t, StateTimedOut, flow.State())
}

func TestOAuthFlow_LoginDeniedTimesOut(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, func(c *OAuthConfig) {
		c.Timeout = 500 * time.Millisecond
		c.Browser = callbackBrowser(t, "error=access_denied")
	})

	_, err := flow.Login(context.Background())

	assert.ErrorIs(t, err, ErrAuthorizationTimeout)
	assert.Empty(t, ts.forms, "token endpoint must not be called")
}

func TestOAuthFlow_LoginRejectsForeignState(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	var sentState string
	flow := testFlow(ts, func(c *OAuthConfig) {
		c.Timeout = 500 * time.Millisecond
		c.Browser = BrowserOpenerFunc(func(authURL string) error {
			u, err := url.Parse(authURL)
			require.NoError(t, err)
			sentState = u.Query().Get("state")
			go func() {
				resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=forged&state=other")
				if err == nil {
					_ = resp.Body.Close()
				}
			}()
			return nil
		})
	})

	_, err := flow.Login(context.Background())

	assert.ErrorIs(t, err, ErrAuthorizationTimeout)
	assert.NotEmpty(t, sentState)
	assert.Empty(t, ts.forms, "token endpoint must not be called")
}

func TestOAuthFlow_LoginCancelled(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := flow.Login(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, flow.State())
}

func TestOAuthFlow_LoginExchangeFails(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	flow := testFlow(ts, func(c *OAuthConfig) { c.Browser = callbackBrowser(t, "code=stale") })

	_, err := flow.Login(context.Background())

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, StateFailed, flow.State())
}

func TestOAuthFlow_LoginBindError(t *testing.T) {
	first, err := ListenCallback("http://127.0.0.1:0/callback")
	require.NoError(t, err)
	defer func() { _ = first.Close() }()

	ts := newTokenServer(t, http.StatusOK, tokenResponseBody)
	flow := testFlow(ts, func(c *OAuthConfig) {
		c.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", first.Port())
	})

	_, err = flow.Login(context.Background())

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, first.Port(), bindErr.Port)
	assert.Equal(t, StateFailed, flow.State())
}

func TestTokenResponse_Credential(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cred := (&TokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 7200}).Credential(now)
	assert.Equal(t, KindOAuth, cred.Kind)
	assert.Equal(t, "a", cred.AccessToken)
	assert.Equal(t, "r", cred.RefreshToken)
	assert.Equal(t, now.Add(2*time.Hour), cred.ExpiresAt)
	assert.True(t, cred.CanRefresh())

	noExpiry := (&TokenResponse{AccessToken: "a"}).Credential(now)
	assert.True(t, noExpiry.ExpiresAt.IsZero())
	assert.False(t, noExpiry.IsExpired())
}

func TestFlowState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_callback", StateAwaitingCallback.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "unknown", FlowState(99).String())
}

func TestRedirectURLWithPort(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:4242/callback", redirectURLWithPort("http://127.0.0.1:0/callback", 4242))
	assert.Equal(t, "http://localhost:8085/callback", redirectURLWithPort("http://localhost:8085/callback", 4242))
}
