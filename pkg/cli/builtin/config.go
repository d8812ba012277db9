package builtin

import (
	"fmt"
	"io"

	"github.com/bbcli/bb/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigOptions configures the config command behavior.
type ConfigOptions struct {
	Store  *config.Store
	Output io.Writer
}

// NewConfigCommand creates a new config command group.
func NewConfigCommand(opts *ConfigOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage bb preferences.

Configuration is stored in $BB_CONFIG or the XDG config directory
(` + config.DefaultPath() + `).

Available subcommands:
  show  - Display the configuration file
  get   - Get a preference
  set   - Set a preference
  path  - Show the configuration file path

Preferences: editor, pager, browser, git_protocol, prompt.`,
	}

	cmd.AddCommand(newConfigShowCommand(opts))
	cmd.AddCommand(newConfigGetCommand(opts))
	cmd.AddCommand(newConfigSetCommand(opts))
	cmd.AddCommand(newConfigPathCommand(opts))

	return cmd
}

func newConfigShowCommand(opts *ConfigOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Store.Load()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			_, _ = fmt.Fprint(opts.Output, string(data))
			return nil
		},
	}
}

func newConfigGetCommand(opts *ConfigOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "get <key>",
		Short:     "Get a preference",
		Example:   "  bb config get git_protocol",
		Args:      cobra.ExactArgs(1),
		ValidArgs: configKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Store.Load()
			if err != nil {
				return err
			}

			if !isConfigKey(args[0]) {
				return fmt.Errorf("unknown config key %q", args[0])
			}
			value, _ := cfg.Get(args[0])
			_, _ = fmt.Fprintln(opts.Output, value)
			return nil
		},
	}
}

func newConfigSetCommand(opts *ConfigOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a preference",
		Example:   "  bb config set git_protocol ssh",
		Args:      cobra.ExactArgs(2),
		ValidArgs: configKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Store.Load()
			if err != nil {
				return err
			}

			if !cfg.Set(args[0], args[1]) {
				return fmt.Errorf("unknown config key %q", args[0])
			}
			return opts.Store.Save(cfg)
		},
	}
}

func newConfigPathCommand(opts *ConfigOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintln(opts.Output, opts.Store.Path())
			return nil
		},
	}
}

var configKeys = []string{"editor", "pager", "browser", "git_protocol", "prompt"}

func isConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}
