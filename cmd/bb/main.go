// Package main implements the bb command-line client for Bitbucket.
package main

import (
	"os"

	"github.com/bbcli/bb/pkg/api"
	"github.com/bbcli/bb/pkg/cli/builtin"
	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	version = "0.1.0"
	// BuildDate is set at build time
	buildDate = ""
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	api.Version = version

	authOpts, err := builtin.NewDefaultAuthOptions()
	if err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		return api.ExitUsage
	}

	root := newRootCmd(authOpts)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		return api.ExitCodeFor(err)
	}
	return api.ExitOK
}

func newRootCmd(authOpts *builtin.AuthOptions) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "bb",
		Short: "Work with Bitbucket Cloud and Bitbucket Server/DC from the command line",
		Long: `bb is a command-line client for Bitbucket Cloud and Bitbucket Server/Data Center.

Start with:
  bb auth login`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				log.SetLevel(log.DebugLevel)
				log.Debugf("config file: %s", authOpts.ConfigStore.Path())
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(builtin.NewAuthCommand(authOpts))
	cmd.AddCommand(builtin.NewConfigCommand(&builtin.ConfigOptions{
		Store:  authOpts.ConfigStore,
		Output: os.Stdout,
	}))
	cmd.AddCommand(builtin.NewVersionCommand(&builtin.VersionOptions{
		Version:   version,
		BuildDate: buildDate,
		Output:    os.Stdout,
	}))
	cmd.AddCommand(builtin.NewCompletionCommand(&builtin.CompletionOptions{Output: os.Stdout}, cmd))

	return cmd
}
