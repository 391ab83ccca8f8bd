package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorListCommand(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOutputWriter(buf)
	root.Command().SetArgs([]string{"descriptor", "list"})

	require.NoError(t, root.Execute())
	out := buf.String()
	assert.Contains(t, out, "bet")
	assert.Contains(t, out, "dtifit")
	assert.Contains(t, out, "mrconvert")
}

func TestDescriptorShowCommand_JSON(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOutputWriter(buf)
	root.Command().SetArgs([]string{"descriptor", "show", "dtifit", "-o", "json"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), `"command-line"`)
	assert.Contains(t, buf.String(), "dtifit --data=")
}

func TestDescriptorValidateCommand(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	t.Run("embedded descriptor passes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		root := NewRootCommand()
		root.SetOutputWriter(buf)
		root.Command().SetArgs([]string{"descriptor", "validate", "bet"})

		require.NoError(t, root.Execute())
		assert.Contains(t, buf.String(), "valid")
	})

	t.Run("defective descriptor fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"name": "broken",
			"command-line": "broken [IN] [ORPHAN]",
			"inputs": [{"id": "in", "type": "File", "value-key": "[IN]"}],
			"output-files": []
		}`), 0o644))

		root := NewRootCommand()
		root.SetOutputWriter(&bytes.Buffer{})
		root.Command().SetArgs([]string{"descriptor", "validate", path})

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation errors")
	})
}

func TestSuiteListCommand(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOutputWriter(buf)
	root.Command().SetArgs([]string{"suite", "list"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "dwi-smoke")
	assert.Contains(t, buf.String(), "anat-smoke")
}

func TestSuiteValidateCommand(t *testing.T) {
	t.Setenv("NITEST_DATA_DIR", t.TempDir())

	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOutputWriter(buf)
	root.Command().SetArgs([]string{"suite", "validate", "dwi-smoke"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "valid")
}
