package stage

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyInput     = fmt.Errorf("empty input")
	ErrInvalidFormat  = fmt.Errorf("invalid format")
	ErrSuiteNameEmpty = fmt.Errorf("suite name is empty")
	ErrNoStages       = fmt.Errorf("no stages defined")
)

func ParseYAML(data []byte) (*Suite, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if err := normalizeSuite(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func ParseFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}
	return ParseYAML(data)
}

// ParseFS reads a suite definition from an fs.FS, used for the embedded catalog.
func ParseFS(fsys fs.FS, path string) (*Suite, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read embedded suite: %w", err)
	}
	return ParseYAML(data)
}

func normalizeSuite(s *Suite) error {
	if s.Name == "" {
		return ErrSuiteNameEmpty
	}
	if len(s.Stages) == 0 {
		return ErrNoStages
	}

	for i := range s.Stages {
		st := &s.Stages[i]

		if st.DependsOn == nil {
			st.DependsOn = []string{}
		}

		for j := range st.Inputs {
			if st.Inputs[j].From == "" {
				st.Inputs[j].From = SourceLiteral
			}
		}

		if st.Timeout != "" {
			d, err := time.ParseDuration(st.Timeout)
			if err != nil {
				return fmt.Errorf("stage %s: parse timeout: %w", st.ID, err)
			}
			st.TimeoutD = d
		}
	}
	return nil
}

func (s *Suite) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}
