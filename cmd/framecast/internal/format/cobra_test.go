package format

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandWithFlags(t *testing.T, set map[string]string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{Use: "export"}
	cmd.Flags().String("output", "table", "")
	cmd.Flags().Bool("quiet", false, "")
	cmd.Flags().Bool("no-color", false, "")
	for k, v := range set {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, &out
}

func TestFromCommand(t *testing.T) {
	tests := []struct {
		name     string
		flags    map[string]string
		wantJSON bool
		wantOut  string
	}{
		{"defaults", nil, false, "done\n"},
		{"json", map[string]string{"output": "json"}, true, ""},
		{"quiet table", map[string]string{"quiet": "true", "no-color": "true"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, out := commandWithFlags(t, tt.flags)
			f := FromCommand(cmd)

			assert.Equal(t, tt.wantJSON, f.IsJSON())
			require.NoError(t, f.PrintSummary("done"))
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}

func TestFromCommand_WithoutFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "version"}
	var out bytes.Buffer
	cmd.SetOut(&out)

	f := FromCommand(cmd)
	require.False(t, f.IsJSON())
	require.NoError(t, f.PrintSummary("plain"))
	assert.Equal(t, "plain\n", out.String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
