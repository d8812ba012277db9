package builtin

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// VersionInfo describes the bb binary.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// VersionOptions configures the version command behavior.
type VersionOptions struct {
	Version      string
	BuildDate    string
	OutputFormat string
	Output       io.Writer
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(opts *VersionOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (text|json|yaml)")

	return cmd
}

func runVersion(opts *VersionOptions) error {
	info := &VersionInfo{
		Version:   opts.Version,
		BuildDate: opts.BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	switch opts.OutputFormat {
	case "json":
		encoder := json.NewEncoder(opts.Output)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		return yaml.NewEncoder(opts.Output).Encode(info)
	case "text", "":
		_, _ = fmt.Fprintf(opts.Output, "bb version %s", info.Version)
		if info.BuildDate != "" {
			_, _ = fmt.Fprintf(opts.Output, " (%s)", info.BuildDate)
		}
		_, _ = fmt.Fprintf(opts.Output, "\nGo: %s\nPlatform: %s\n", info.GoVersion, info.Platform)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", opts.OutputFormat)
	}
}
