// Package stage models test suites: ordered collections of pipeline stages
// with declared dependencies, input bindings and output contracts.
package stage

import (
	"fmt"
	"time"
)

// Source tags where an input binding's value comes from.
type Source string

const (
	// SourceLiteral binds a scalar value verbatim.
	SourceLiteral Source = "literal"
	// SourceFixture binds an artifact of a generated fixture.
	SourceFixture Source = "fixture"
	// SourceStage binds an artifact produced by an upstream stage.
	SourceStage Source = "stage"
)

// Suite is a named collection of stages forming an acyclic dependency graph.
type Suite struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Stages      []Stage `yaml:"stages" json:"stages"`
}

// Stage is one tool invocation step in a multi-step imaging pipeline.
type Stage struct {
	ID         string         `yaml:"id" json:"id"`
	Descriptor string         `yaml:"descriptor" json:"descriptor"`
	Fixture    string         `yaml:"fixture,omitempty" json:"fixture,omitempty"`
	DependsOn  []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Inputs     []InputBinding `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs    []OutputDecl   `yaml:"outputs" json:"outputs"`
	Timeout    string         `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TimeoutD is the parsed form of Timeout; zero means the configured
	// suite default applies.
	TimeoutD time.Duration `yaml:"-" json:"-"`
}

// InputBinding maps a descriptor input ID to a concrete value source.
type InputBinding struct {
	Input    string `yaml:"input" json:"input"`
	From     Source `yaml:"from,omitempty" json:"from,omitempty"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
	Artifact string `yaml:"artifact,omitempty" json:"artifact,omitempty"`
	Stage    string `yaml:"stage,omitempty" json:"stage,omitempty"`
}

// OutputDecl declares one artifact a stage must produce, relative to the
// stage output directory, together with the checks it must satisfy.
type OutputDecl struct {
	ID          string `yaml:"id" json:"id"`
	Path        string `yaml:"path" json:"path"`
	Dir         bool   `yaml:"dir,omitempty" json:"dir,omitempty"`
	NonEmpty    bool   `yaml:"non_empty,omitempty" json:"non_empty,omitempty"`
	HeaderCheck bool   `yaml:"header_check,omitempty" json:"header_check,omitempty"`
	Optional    bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// StageByID returns the stage with the given ID, or nil.
func (s *Suite) StageByID(id string) *Stage {
	for i := range s.Stages {
		if s.Stages[i].ID == id {
			return &s.Stages[i]
		}
	}
	return nil
}

// DescriptorRefs returns the distinct descriptor references the suite's
// stages use, in definition order.
func (s *Suite) DescriptorRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, st := range s.Stages {
		if st.Descriptor != "" && !seen[st.Descriptor] {
			seen[st.Descriptor] = true
			refs = append(refs, st.Descriptor)
		}
	}
	return refs
}

// StageIDs returns the declared stage IDs in definition order.
func (s *Suite) StageIDs() []string {
	ids := make([]string, len(s.Stages))
	for i, st := range s.Stages {
		ids[i] = st.ID
	}
	return ids
}

// ValidationError is one structural defect in a suite definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationResult aggregates suite defects.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

func (r *ValidationResult) addError(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// Err folds the result into a single error, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 1 {
		return r.Errors[0]
	}
	return fmt.Errorf("%d suite validation errors, first: %s", len(r.Errors), r.Errors[0].Error())
}
