package auth

import (
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// BrowserOpener opens a URL for the user.
type BrowserOpener interface {
	Open(url string) error
}

// BrowserOpenerFunc adapts a function to BrowserOpener.
type BrowserOpenerFunc func(url string) error

// Open calls f(url).
func (f BrowserOpenerFunc) Open(url string) error {
	return f(url)
}

// SystemBrowserOpener opens URLs using the system default browser.
type SystemBrowserOpener struct{}

// Open opens a URL in the system default browser.
func (s *SystemBrowserOpener) Open(url string) error {
	return open.Run(url)
}

// MockBrowserOpener records opened URLs and returns Err.
type MockBrowserOpener struct {
	mu         sync.Mutex
	OpenedURLs []string
	Err        error
}

// Open records the URL and returns the configured error.
func (m *MockBrowserOpener) Open(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenedURLs = append(m.OpenedURLs, url)
	return m.Err
}

// GetOpenedURLs returns a copy of the opened URLs.
func (m *MockBrowserOpener) GetOpenedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, len(m.OpenedURLs))
	copy(urls, m.OpenedURLs)
	return urls
}

// OpenBrowserWithFallback prints url to writer and asks opener to open it. When
// the browser cannot be launched the user is told to visit the URL manually and
// the launch error is returned for the caller to treat as a warning.
func OpenBrowserWithFallback(opener BrowserOpener, url string, writer io.Writer) error {
	if opener == nil {
		opener = &SystemBrowserOpener{}
	}

	_, _ = fmt.Fprintf(writer, "\nOpening browser to:\n%s\n\n", url)

	if err := opener.Open(url); err != nil {
		log.Debugf("failed to launch browser: %v", err)
		_, _ = fmt.Fprintf(writer, "Failed to open browser automatically.\n")
		_, _ = fmt.Fprintf(writer, "Please visit the URL above manually.\n")
		return err
	}

	return nil
}
