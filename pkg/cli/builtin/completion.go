package builtin

import (
	"fmt"
	"io"

	"github.com/bbcli/bb/pkg/config"
	"github.com/spf13/cobra"
)

// CompletionOptions configures the completion command behavior.
type CompletionOptions struct {
	Output io.Writer
}

// NewCompletionCommand creates a new completion command.
func NewCompletionCommand(opts *CompletionOptions, rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for bb.

Bash:
  $ bb completion bash > ~/.local/share/bash-completion/completions/bb

Zsh:
  $ bb completion zsh > "${fpath[1]}/_bb"

Fish:
  $ bb completion fish > ~/.config/fish/completions/bb.fish

PowerShell:
  PS> bb completion powershell | Out-String | Invoke-Expression`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(rootCmd, args[0], opts.Output)
		},
	}
}

func runCompletion(rootCmd *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(w, true)
	case "zsh":
		return rootCmd.GenZshCompletion(w)
	case "fish":
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
}

// CompletionFunc is a helper type for dynamic completion functions.
type CompletionFunc func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective)

// ProfileCompletion completes profile names from the config file.
func ProfileCompletion(store *config.Store) CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := store.Load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		var names []string
		for _, p := range cfg.ProfileManager().List() {
			names = append(names, p.Name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}

// HostCompletion completes configured host keys.
func HostCompletion(store *config.Store) CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := store.Load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return cfg.HostKeys(), cobra.ShellCompDirectiveNoFileComp
	}
}
