package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bbcli/bb/pkg/auth"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// serverProbePaths are tried in order; the second one covers instances that
// restrict application-properties.
var serverProbePaths = []string{
	"/application-properties",
	"/projects?limit=1",
}

const whoamiPath = "/plugins/servlet/applinks/whoami"

// ValidateServerToken checks a personal access token against a Server/DC
// host. It returns true on the first 2xx probe, false on a 401 and an error for
// any other status or a transport failure.
func ValidateServerToken(ctx context.Context, host, token string, opts ...Option) (bool, error) {
	opts = append(opts, WithCredential(auth.NewPersonalAccessToken(token)))
	return NewServer(host, opts...).Validate(ctx)
}

func (c *Client) validateServer(ctx context.Context) (bool, error) {
	for i, path := range serverProbePaths {
		status, body, err := c.send(ctx, http.MethodGet, c.BaseURL()+path, nil)
		if err != nil {
			return false, err
		}

		switch {
		case status >= 200 && status < 300:
			return true, nil
		case status == http.StatusUnauthorized:
			return false, nil
		case i < len(serverProbePaths)-1:
			log.Debugf("token probe %s returned %d, trying next", path, status)
		default:
			return false, &Error{
				Kind:    KindUnknown,
				Status:  status,
				Message: fmt.Sprintf("unexpected response (%d): %s", status, body),
				Body:    string(body),
			}
		}
	}
	return false, nil
}

// ValidateCloudCredential checks cred against Bitbucket Cloud. A 401 means the
// credential is invalid; any other failure is returned as an error since it
// says nothing about the credential.
func ValidateCloudCredential(ctx context.Context, cred *auth.Credential, opts ...Option) (bool, error) {
	opts = append(opts, WithCredential(cred))
	return NewCloud(opts...).Validate(ctx)
}

// Validate checks the client's credential against its platform.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	if c.credential == nil {
		return false, ErrAuthRequired(c.host)
	}
	if c.IsServer() {
		return c.validateServer(ctx)
	}

	err := c.Get(ctx, "/user", nil)
	if err == nil {
		return true, nil
	}
	if IsKind(err, KindAuthFailed) {
		return false, nil
	}
	return false, err
}

// CurrentUsername returns the account name behind the client's credential, or
// "" when it cannot be determined. Failures are logged, never returned.
func (c *Client) CurrentUsername(ctx context.Context) string {
	if c.IsCloud() {
		return c.cloudUsername(ctx)
	}
	return c.serverUsername(ctx)
}

func (c *Client) cloudUsername(ctx context.Context) string {
	status, body, err := c.send(ctx, http.MethodGet, c.BaseURL()+"/user", nil)
	if err != nil {
		log.Debugf("failed to fetch current user: %v", err)
		return ""
	}
	if status < 200 || status >= 300 {
		log.Debugf("current user request returned %d", status)
		return ""
	}
	return gjson.GetBytes(body, "username").String()
}

func (c *Client) serverUsername(ctx context.Context) string {
	status, body, err := c.send(ctx, http.MethodGet, c.RootURL()+whoamiPath, nil)
	if err != nil {
		log.Debugf("failed to fetch username from whoami: %v", err)
		return ""
	}
	if status < 200 || status >= 300 {
		log.Debugf("whoami returned %d", status)
		return ""
	}

	name := strings.TrimSpace(string(body))
	if name == "anonymous" {
		return ""
	}
	return name
}
