package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestGet reports the injected version and the toolchain.
func TestGet(t *testing.T) {
	t.Parallel()

	info := Get()
	require.Equal(t, Version, info.Version)
	require.Equal(t, runtime.Version(), info.GoVersion)
	require.NotEmpty(t, info.Commit)
	require.True(t, strings.HasPrefix(info.String(), "deadman "+Version))
}

// TestKV pairs every key with its value.
func TestKV(t *testing.T) {
	t.Parallel()

	kv := KV()
	require.Len(t, kv, 8)
	require.Equal(t, []any{"version", Version}, kv[:2])
}

// TestShortRevision trims git hashes to seven characters.
func TestShortRevision(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0123456", shortRevision("0123456789abcdef"))
	require.Equal(t, "abc", shortRevision("abc"))
}

// TestVersionCommand prints the full line or only the number.
func TestVersionCommand(t *testing.T) {
	t.Parallel()

	run := func(args ...string) string {
		root := &cobra.Command{Use: "deadman-test"}
		AttachCobraVersionCommand(root)

		var out bytes.Buffer

		root.SetOut(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute())

		return strings.TrimSpace(out.String())
	}

	require.Equal(t, Version, run("version", "--short"))
	require.Contains(t, run("version"), runtime.Version())
}
