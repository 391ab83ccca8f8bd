package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "name": "fsl_bet",
  "tool-version": "6.0.5",
  "command-line": "bet [INFILE] [MASKFILE] [FRACTIONAL_INTENSITY]",
  "container-image": {"type": "docker", "image": "fsl:6.0.5", "family": "fsl"},
  "inputs": [
    {"id": "infile", "type": "File", "value-key": "[INFILE]"},
    {"id": "maskfile", "type": "String", "value-key": "[MASKFILE]"},
    {"id": "fractional_intensity", "type": "Number", "value-key": "[FRACTIONAL_INTENSITY]", "command-line-flag": "-f", "optional": true}
  ],
  "output-files": [
    {"id": "brain_mask", "path-template": "[MASKFILE]_mask.nii.gz"}
  ]
}`

func TestParseJSON(t *testing.T) {
	d, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "fsl_bet", d.Name)
	assert.Equal(t, "6.0.5", d.ToolVersion)
	require.Len(t, d.Inputs, 3)
	assert.Equal(t, InputFile, d.Inputs[0].Type)
	assert.True(t, d.Inputs[2].Optional)
	require.NotNil(t, d.ContainerImg)
	assert.Equal(t, "fsl", d.ContainerImg.Family)
	require.Len(t, d.OutputFiles, 1)
	assert.Equal(t, "brain_mask", d.OutputFiles[0].ID)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "empty input", data: "", wantErr: ErrEmptyInput},
		{name: "not JSON", data: "{{{", wantErr: ErrInvalidFormat},
		{name: "missing name", data: `{"command-line": "echo hi"}`, wantErr: ErrNameEmpty},
		{name: "missing command line", data: `{"name": "x"}`, wantErr: ErrNoCommandLine},
		{name: "blank command line", data: `{"name": "x", "command-line": "   "}`, wantErr: ErrNoCommandLine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseYAML(t *testing.T) {
	data := `
name: mrtrix_dwi2tensor
command-line: dwi2tensor [DWI] [TENSOR]
inputs:
  - id: dwi
    type: File
    value-key: "[DWI]"
  - id: tensor
    value-key: "[TENSOR]"
output-files:
  - id: tensor_img
    path-template: "[TENSOR]"
`
	d, err := ParseYAML([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "mrtrix_dwi2tensor", d.Name)
	// Unspecified type defaults to String.
	assert.Equal(t, InputString, d.Inputs[1].Type)
}

func TestParseFile_FormatByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "tool.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0o644))
	d, err := ParseFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "fsl_bet", d.Name)

	_, err = ParseFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestInputAndOutputByID(t *testing.T) {
	d, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)

	require.NotNil(t, d.InputByID("infile"))
	assert.Nil(t, d.InputByID("nope"))
	require.NotNil(t, d.OutputByID("brain_mask"))
	assert.Nil(t, d.OutputByID("nope"))
}
