package builtin

import (
	"bytes"
	"encoding/json"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out []byte)
	}{
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out []byte) {
				assert.Contains(t, string(out), "bb version 1.2.3 (2026-01-02)")
				assert.Contains(t, string(out), "Go: "+runtime.Version())
			},
		},
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out []byte) {
				var info VersionInfo
				require.NoError(t, json.Unmarshal(out, &info))
				assert.Equal(t, "1.2.3", info.Version)
				assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
			},
		},
		{
			name:   "yaml",
			format: "yaml",
			check: func(t *testing.T, out []byte) {
				var info VersionInfo
				require.NoError(t, yaml.Unmarshal(out, &info))
				assert.Equal(t, "2026-01-02", info.BuildDate)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cmd := NewVersionCommand(&VersionOptions{Version: "1.2.3", BuildDate: "2026-01-02", Output: out})
			cmd.SetArgs([]string{"-o", tt.format})
			cmd.SetOut(io.Discard)
			require.NoError(t, cmd.Execute())
			tt.check(t, out.Bytes())
		})
	}
}

func TestVersionCommand_UnknownFormat(t *testing.T) {
	cmd := NewVersionCommand(&VersionOptions{Version: "1.2.3", Output: io.Discard})
	cmd.SetArgs([]string{"-o", "xml"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
