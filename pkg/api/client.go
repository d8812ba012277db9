// Package api is the HTTP client for the Bitbucket Cloud and Server/DC REST
// dialects.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bbcli/bb/pkg/auth"
	"github.com/bbcli/bb/pkg/config"
	log "github.com/sirupsen/logrus"
)

const (
	// CloudRootURL is the Bitbucket Cloud API host.
	CloudRootURL = "https://" + config.CloudAPIHost

	cloudBasePath  = "/2.0"
	serverBasePath = "/rest/api/1.0"

	// DefaultTimeout is the request timeout of the default HTTP client.
	DefaultTimeout = 30 * time.Second
)

// Version is reported in the User-Agent header. It is set by cmd/bb.
var Version = "dev"

// Platform is the REST dialect spoken by a host.
type Platform int

const (
	PlatformCloud Platform = iota
	PlatformServer
)

func (p Platform) String() string {
	if p == PlatformCloud {
		return "cloud"
	}
	return "server"
}

// Target identifies the platform of a client. Version is only meaningful for
// Server and may be empty.
type Target struct {
	Platform Platform
	Version  string
}

// Client executes requests against one host. The target is fixed at
// construction.
type Client struct {
	httpClient *http.Client
	host       string
	target     Target
	rootURL    string
	credential *auth.Credential
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCredential attaches a credential to every request.
func WithCredential(cred *auth.Credential) Option {
	return func(c *Client) {
		c.credential = cred
	}
}

// WithRootURL overrides the scheme and host requests are sent to, keeping the
// platform base path. Used to point a client at a test server.
func WithRootURL(root string) Option {
	return func(c *Client) {
		c.rootURL = strings.TrimSuffix(root, "/")
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewCloud creates a client for Bitbucket Cloud.
func NewCloud(opts ...Option) *Client {
	return newClient(config.CloudAPIHost, Target{Platform: PlatformCloud}, CloudRootURL, opts)
}

// NewServer creates a client for the Bitbucket Server/DC instance at host. The
// host may include a context path.
func NewServer(host string, opts ...Option) *Client {
	host = config.NormalizeHost(host)
	return newClient(host, Target{Platform: PlatformServer}, "https://"+host, opts)
}

// NewFromConfig creates a client for a configured host, inferring the platform
// from the host name.
func NewFromConfig(hc config.HostConfig, opts ...Option) *Client {
	if config.IsCloudHost(hc.Host) {
		return NewCloud(opts...)
	}
	c := NewServer(hc.Host, opts...)
	c.target.Version = hc.APIVersion
	return c
}

func newClient(host string, target Target, root string, opts []Option) *Client {
	c := &Client{
		host:      host,
		target:    target,
		rootURL:   root,
		userAgent: "bb/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

// Host returns the host the client was created for.
func (c *Client) Host() string {
	return c.host
}

// Target returns the platform target.
func (c *Client) Target() Target {
	return c.target
}

// IsCloud reports whether the client targets Bitbucket Cloud.
func (c *Client) IsCloud() bool {
	return c.target.Platform == PlatformCloud
}

// IsServer reports whether the client targets Bitbucket Server/DC.
func (c *Client) IsServer() bool {
	return c.target.Platform == PlatformServer
}

// RootURL returns the scheme and host, without the API base path.
func (c *Client) RootURL() string {
	return c.rootURL
}

// BaseURL returns the API prefix paths are appended to.
func (c *Client) BaseURL() string {
	if c.IsCloud() {
		return c.rootURL + cloudBasePath
	}
	return c.rootURL + serverBasePath
}

// Credential returns the attached credential, or nil.
func (c *Client) Credential() *auth.Credential {
	return c.credential
}

// Get decodes the response of GET BaseURL()+path into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, c.BaseURL()+path, nil, out)
}

// GetURL decodes the response of GET rawURL into out. rawURL is used
// verbatim, as needed for cursor pagination links.
func (c *Client) GetURL(ctx context.Context, rawURL string, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, nil, out)
}

// Post sends body as JSON and decodes the response into out. out may be nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, c.BaseURL()+path, body, out)
}

// Put sends body as JSON and decodes the response into out. out may be nil.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, c.BaseURL()+path, body, out)
}

// Delete issues DELETE BaseURL()+path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, c.BaseURL()+path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	status, data, err := c.send(ctx, method, rawURL, body)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		return NewStatusError(status, data, c.credential != nil)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Status: status, Body: string(data), Err: err}
	}
	return nil
}

// send executes a request and returns the status and full body. Only
// transport failures are returned as errors.
func (c *Client) send(ctx context.Context, method, rawURL string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if c.credential != nil {
		if err := c.credential.Apply(req); err != nil {
			return 0, nil, err
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, NewNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, NewNetworkError(fmt.Errorf("failed to read response: %w", err))
	}

	log.WithFields(log.Fields{
		"method":   method,
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("api request")

	return resp.StatusCode, data, nil
}
