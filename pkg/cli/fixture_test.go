package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureEnsureCommand(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOutputWriter(buf)
	root.Command().SetArgs([]string{"fixture", "ensure", "dwi-smoke", "-o", "json"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), `"kind": "dwi-smoke"`)
	assert.Contains(t, buf.String(), "dwi.nii.gz")

	// The materialized files exist under the derived data directory.
	entries, err := os.ReadDir(root.Config().General.DerivedDataDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dwi-smoke", entries[0].Name())
}

func TestFixtureEnsureCommand_Idempotent(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("NITEST_DATA_DIR", dataDir)

	run := func() {
		root := NewRootCommand()
		root.SetOutputWriter(&bytes.Buffer{})
		root.Command().SetArgs([]string{"fixture", "ensure", "dwi-smoke", "-q"})
		require.NoError(t, root.Execute())
	}

	run()
	first := statFixture(t, dataDir)
	run()
	assert.Equal(t, first, statFixture(t, dataDir), "a second ensure leaves the files untouched")
}

func TestFixtureListCommand(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	t.Run("nothing materialized", func(t *testing.T) {
		buf := &bytes.Buffer{}
		root := NewRootCommand()
		root.SetOutputWriter(buf)
		root.Command().SetArgs([]string{"fixture", "list"})

		require.NoError(t, root.Execute())
		assert.Contains(t, buf.String(), "No items")
	})

	t.Run("after ensure", func(t *testing.T) {
		ensure := NewRootCommand()
		ensure.SetOutputWriter(&bytes.Buffer{})
		ensure.Command().SetArgs([]string{"fixture", "ensure", "dwi-multishell", "-q"})
		require.NoError(t, ensure.Execute())

		buf := &bytes.Buffer{}
		root := NewRootCommand()
		root.SetOutputWriter(buf)
		root.Command().SetArgs([]string{"fixture", "list"})

		require.NoError(t, root.Execute())
		assert.Contains(t, buf.String(), "dwi-multishell")
	})
}

func statFixture(t *testing.T, dataDir string) map[string]int64 {
	t.Helper()
	dir := filepath.Join(dataDir, "deriveddata", "dwi-smoke")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	sizes := make(map[string]int64, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		require.NoError(t, err)
		sizes[e.Name()] = info.Size()
	}
	return sizes
}
