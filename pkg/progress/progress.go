// Package progress shows a spinner while bb waits on the network.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// Config configures a Spinner.
type Config struct {
	// Enabled determines if the spinner is shown.
	Enabled bool
	// Writer is where to write progress output.
	Writer io.Writer
}

// DefaultConfig enables the spinner on stderr when stderr is a terminal.
func DefaultConfig() *Config {
	return &Config{
		Enabled: term.IsTerminal(int(os.Stderr.Fd())),
		Writer:  os.Stderr,
	}
}

// Spinner implements a spinner progress indicator. A disabled spinner prints
// only its final success or failure line.
type Spinner struct {
	spinner *pterm.SpinnerPrinter
	config  *Config
	active  bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner progress indicator.
func NewSpinner(config *Config) *Spinner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	return &Spinner{
		config: config,
	}
}

// Start starts the spinner with a message.
func (s *Spinner) Start(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("spinner already active")
	}
	s.active = true

	if !s.config.Enabled {
		return nil
	}

	var err error
	s.spinner, err = pterm.DefaultSpinner.WithWriter(s.config.Writer).Start(message)
	if err != nil {
		s.active = false
		return fmt.Errorf("failed to start spinner: %w", err)
	}
	return nil
}

// Success marks the spinner as successful.
func (s *Spinner) Success(message string) {
	s.finish(message, true)
}

// Failure marks the spinner as failed.
func (s *Spinner) Failure(message string) {
	s.finish(message, false)
}

func (s *Spinner) finish(message string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false

	if s.spinner != nil {
		if ok {
			s.spinner.Success(message)
		} else {
			s.spinner.Fail(message)
		}
		s.spinner = nil
		return
	}

	if message == "" {
		return
	}
	if ok {
		pterm.Success.WithWriter(s.config.Writer).Println(message)
	} else {
		pterm.Error.WithWriter(s.config.Writer).Println(message)
	}
}

// Stop stops the spinner without a final message.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spinner != nil {
		_ = s.spinner.Stop()
		s.spinner = nil
	}
	s.active = false
}

// IsActive returns true if the spinner is active.
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
