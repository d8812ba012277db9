package interactive

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewPrompter(&PrompterConfig{
		Input:  strings.NewReader(input),
		Output: out,
	}), out
}

// TestNewPrompter tests prompter creation.
func TestNewPrompter(t *testing.T) {
	p := NewPrompter(nil)
	if p == nil {
		t.Fatal("expected prompter, got nil")
	}

	p, _ = newTestPrompter("")
	if p.IsInteractive() {
		t.Error("expected non-interactive prompter for a non-terminal input")
	}
}

// TestTextPrompt tests line-based text prompts.
func TestTextPrompt(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		opts      *TextPromptOptions
		wantErr   bool
		wantValue string
	}{
		{
			name:    "nil options",
			opts:    nil,
			wantErr: true,
		},
		{
			name:      "reads trimmed line",
			input:     "  alice \n",
			opts:      &TextPromptOptions{Message: "Username"},
			wantValue: "alice",
		},
		{
			name:      "last line without newline",
			input:     "bob",
			opts:      &TextPromptOptions{Message: "Username"},
			wantValue: "bob",
		},
		{
			name:      "default on empty line",
			input:     "\n",
			opts:      &TextPromptOptions{Message: "Host", Default: "bitbucket.org"},
			wantValue: "bitbucket.org",
		},
		{
			name:    "required and empty",
			input:   "\n",
			opts:    &TextPromptOptions{Message: "Username", Required: true},
			wantErr: true,
		},
		{
			name:    "no input",
			input:   "",
			opts:    &TextPromptOptions{Message: "Username"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPrompter(tt.input)
			got, err := p.Text(tt.opts)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Text() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantValue {
				t.Errorf("Text() = %q, want %q", got, tt.wantValue)
			}
		})
	}
}

func TestSecretPrompt(t *testing.T) {
	p, out := newTestPrompter("s3cret\nnext\n")

	got, err := p.Secret("App password")
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	if got != "s3cret" {
		t.Errorf("Secret() = %q, want %q", got, "s3cret")
	}
	if !strings.Contains(out.String(), "App password: ") {
		t.Errorf("expected prompt label in output, got %q", out.String())
	}

	got, _ = p.Text(&TextPromptOptions{Message: "Next"})
	if got != "next" {
		t.Errorf("Text() after Secret() = %q, want %q", got, "next")
	}

	_, err = p.Secret("Again")
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("Secret() on exhausted input error = %v, want ErrNoInput", err)
	}
}

func TestReadAll(t *testing.T) {
	p, _ := newTestPrompter("  token-value\n\n")
	got, err := p.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got != "token-value" {
		t.Errorf("ReadAll() = %q, want %q", got, "token-value")
	}
}
