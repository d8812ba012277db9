package auth

import (
	"bufio"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultRedirectPort is used when the redirect URI does not name a port.
const DefaultRedirectPort = 8085

// callbackReadTimeout bounds how long the accepted connection may take to send
// its request line.
const callbackReadTimeout = 10 * time.Second

const callbackSuccessPage = `<!DOCTYPE html>
<html><head><title>Authentication Successful</title></head>
<body style="font-family: system-ui, sans-serif; text-align: center; padding: 50px;">
<h1>Authentication Successful!</h1>
<p>You can close this window and return to the terminal.</p>
<script>window.close();</script>
</body></html>`

const callbackFailurePage = `<!DOCTYPE html>
<html><head><title>Authentication Failed</title></head>
<body style="font-family: system-ui, sans-serif; text-align: center; padding: 50px;">
<h1>Authentication Failed</h1>
<p>%s</p>
<p>You can close this window and try again.</p>
</body></html>`

// BindError reports that the loopback listener could not be bound.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind to port %d (is another process using it?): %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// CallbackServer is the loopback listener of a single login attempt. It accepts
// exactly one connection, parses only its request line and signals the captured
// authorization code at most once.
type CallbackServer struct {
	listener net.Listener
	port     int
	state    string
	codeCh   chan string
	done     chan struct{}
	once     sync.Once
}

// ListenCallback binds 127.0.0.1 on the port of redirectURL. Port 0 binds an
// ephemeral port, reported by Port.
func ListenCallback(redirectURL string) (*CallbackServer, error) {
	port, err := redirectPort(redirectURL)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}

	return &CallbackServer{
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
		codeCh:   make(chan string, 1),
		done:     make(chan struct{}),
	}, nil
}

// Port returns the bound port.
func (s *CallbackServer) Port() int {
	return s.port
}

// Code returns the one-shot channel that receives the authorization code.
// Nothing is ever sent when the callback carries an error or no code.
func (s *CallbackServer) Code() <-chan string {
	return s.codeCh
}

// Done is closed once the listener has shut down.
func (s *CallbackServer) Done() <-chan struct{} {
	return s.done
}

// ExpectState makes the callback reject a code whose state parameter differs
// from state. It must be called before Start.
func (s *CallbackServer) ExpectState(state string) {
	s.state = state
}

// Start runs the accept loop in the background.
func (s *CallbackServer) Start() {
	go s.serve()
}

// Close stops the listener. It is safe to call more than once.
func (s *CallbackServer) Close() error {
	var err error
	s.once.Do(func() {
		err = s.listener.Close()
	})
	return err
}

func (s *CallbackServer) serve() {
	defer close(s.done)
	defer func() { _ = s.Close() }()

	conn, err := s.listener.Accept()
	if err != nil {
		log.Debugf("OAuth callback listener stopped: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(callbackReadTimeout))

	reader := bufio.NewReader(conn)
	requestLine, err := reader.ReadString('\n')
	if err != nil && requestLine == "" {
		log.Debugf("failed to read OAuth callback request: %v", err)
		return
	}
	discardHeaders(reader)

	q := parseCallbackRequest(requestLine)
	if q.Code != "" && (s.state == "" || q.State == s.state) {
		log.Debug("OAuth callback received authorization code")
		s.codeCh <- q.Code
		writeCallbackResponse(conn, http.StatusOK, callbackSuccessPage)
		return
	}

	reason := "No authorization code was received."
	switch {
	case q.Error != "":
		log.Debugf("OAuth callback returned error: %s", q.Error)
		reason = "The authorization was denied or an error occurred: " + html.EscapeString(q.Error)
	case q.Code != "":
		log.Debug("OAuth callback state mismatch, code discarded")
		reason = "The authorization response did not match this login attempt."
	}
	writeCallbackResponse(conn, http.StatusBadRequest, fmt.Sprintf(callbackFailurePage, reason))
}

type callbackQuery struct {
	Code  string
	State string
	Error string
}

// parseCallbackRequest extracts the code, state and error query parameters
// from an HTTP request line such as "GET /callback?code=abc HTTP/1.1".
func parseCallbackRequest(requestLine string) callbackQuery {
	parts := strings.Fields(requestLine)
	if len(parts) < 2 {
		return callbackQuery{}
	}

	u, err := url.ParseRequestURI(parts[1])
	if err != nil {
		return callbackQuery{}
	}

	query := u.Query()
	return callbackQuery{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}
}

// discardHeaders consumes the rest of the request head so closing the
// connection does not reset it before the browser reads the response.
func discardHeaders(r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimSpace(line) == "" {
			return
		}
	}
}

func writeCallbackResponse(conn net.Conn, status int, body string) {
	_, _ = fmt.Fprintf(conn,
		"HTTP/1.1 %d %s\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
}

// redirectPort returns the port named by redirectURL, or DefaultRedirectPort.
func redirectPort(redirectURL string) (int, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return 0, fmt.Errorf("invalid redirect URL: %w", err)
	}

	if u.Port() == "" {
		return DefaultRedirectPort, nil
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, fmt.Errorf("invalid redirect URL port %q: %w", u.Port(), err)
	}
	return port, nil
}
