package descriptor

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyInput    = fmt.Errorf("empty input")
	ErrInvalidFormat = fmt.Errorf("invalid format")
	ErrNameEmpty     = fmt.Errorf("descriptor name is empty")
	ErrNoCommandLine = fmt.Errorf("command-line is empty")
)

func ParseJSON(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if err := normalize(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func ParseYAML(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if err := normalize(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func Parse(data []byte, format string) (*Descriptor, error) {
	switch strings.ToLower(format) {
	case "json":
		return ParseJSON(data)
	case "yaml", "yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func ParseFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return Parse(data, formatFor(path))
}

// ParseFS reads a descriptor from an fs.FS, used for the embedded catalog.
func ParseFS(fsys fs.FS, path string) (*Descriptor, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read embedded descriptor: %w", err)
	}
	return Parse(data, formatFor(path))
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func normalize(d *Descriptor) error {
	if d.Name == "" {
		return ErrNameEmpty
	}
	if strings.TrimSpace(d.CommandLine) == "" {
		return ErrNoCommandLine
	}

	if d.Inputs == nil {
		d.Inputs = []Input{}
	}
	if d.OutputFiles == nil {
		d.OutputFiles = []Output{}
	}

	for i := range d.Inputs {
		if d.Inputs[i].Type == "" {
			d.Inputs[i].Type = InputString
		}
	}
	return nil
}

func (d *Descriptor) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
