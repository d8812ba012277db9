// Package interactive prompts the user for login details.
//
// Prompts use pterm when attached to a terminal. When input is not a
// terminal, or interactivity is disabled, answers are read line by line from
// the configured input so commands can be scripted:
//
//	p := interactive.NewPrompter(nil)
//	user, err := p.Text(&interactive.TextPromptOptions{Message: "Username", Required: true})
//	pass, err := p.Secret("App password")
package interactive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// ErrNoInput is returned when a required answer could not be read.
var ErrNoInput = errors.New("no input available")

// Prompter handles interactive user prompts.
type Prompter struct {
	input  io.Reader
	output io.Writer
	lines  *bufio.Reader
	// DisableInteractive forces line-based input even on a terminal.
	DisableInteractive bool
}

// PrompterConfig configures the Prompter.
type PrompterConfig struct {
	Input              io.Reader
	Output             io.Writer
	DisableInteractive bool
}

// NewPrompter creates a new Prompter with the given configuration.
// If config is nil, uses stdin/stdout.
func NewPrompter(config *PrompterConfig) *Prompter {
	if config == nil {
		config = &PrompterConfig{}
	}
	if config.Input == nil {
		config.Input = os.Stdin
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &Prompter{
		input:              config.Input,
		output:             config.Output,
		lines:              bufio.NewReader(config.Input),
		DisableInteractive: config.DisableInteractive,
	}
}

// IsInteractive reports whether prompts are shown on a terminal.
func (p *Prompter) IsInteractive() bool {
	if p.DisableInteractive {
		return false
	}
	_, ok := p.terminalFd()
	return ok
}

func (p *Prompter) terminalFd() (int, bool) {
	f, ok := p.input.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// TextPromptOptions configures a text prompt.
type TextPromptOptions struct {
	Message  string
	Default  string
	Required bool
}

// Text prompts for a line of text.
func (p *Prompter) Text(opts *TextPromptOptions) (string, error) {
	if opts == nil {
		return "", fmt.Errorf("options cannot be nil")
	}

	for {
		var result string
		var err error

		if p.IsInteractive() {
			result, err = pterm.DefaultInteractiveTextInput.
				WithMultiLine(false).
				WithDefaultValue(opts.Default).
				Show(opts.Message)
		} else {
			_, _ = fmt.Fprintf(p.output, "%s: ", opts.Message)
			result, err = p.readLine()
		}
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		result = strings.TrimSpace(result)
		if result == "" {
			result = opts.Default
		}
		if result == "" && opts.Required {
			if !p.IsInteractive() {
				return "", fmt.Errorf("%s is required", strings.ToLower(opts.Message))
			}
			pterm.Error.Println("This field is required")
			continue
		}
		return result, nil
	}
}

// Secret prompts for a value without echoing it. On a terminal x/term hides
// the input; otherwise one line is read from the input.
func (p *Prompter) Secret(message string) (string, error) {
	_, _ = fmt.Fprintf(p.output, "%s: ", message)

	if fd, ok := p.terminalFd(); ok && !p.DisableInteractive {
		b, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(p.output)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ReadAll reads the whole input, as used by --with-token.
func (p *Prompter) ReadAll() (string, error) {
	b, err := io.ReadAll(p.lines)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.lines.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return line, nil
}
