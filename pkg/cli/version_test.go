package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintVersion_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	printVersion(&OutputOptions{Format: OutputTable, Writer: buf})
	assert.Contains(t, buf.String(), "nitest version")
}

func TestPrintVersion_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	printVersion(&OutputOptions{Format: OutputJSON, Writer: buf})

	out := buf.String()
	assert.Contains(t, out, `"version"`)
	assert.Contains(t, out, `"gitCommit"`)
}

func TestPrintVersion_YAML(t *testing.T) {
	buf := &bytes.Buffer{}
	printVersion(&OutputOptions{Format: OutputYAML, Writer: buf})

	out := buf.String()
	assert.Contains(t, out, "version:")
	assert.Contains(t, out, "buildDate:")
}
