// Package descriptor models declarative command-line tool manifests.
//
// A descriptor binds a tool's command line to typed inputs and declared
// output files. The harness treats tool semantics as opaque: it only reads
// input/output names and types to build job specifications and validation
// checks.
package descriptor

type InputType string

const (
	InputString InputType = "String"
	InputNumber InputType = "Number"
	InputFile   InputType = "File"
	InputFlag   InputType = "Flag"
)

// Descriptor is one tool manifest.
type Descriptor struct {
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	ToolVersion   string   `json:"tool-version,omitempty" yaml:"tool-version,omitempty"`
	CommandLine   string   `json:"command-line" yaml:"command-line"`
	SchemaVersion string   `json:"schema-version,omitempty" yaml:"schema-version,omitempty"`
	ContainerImg  *Image   `json:"container-image,omitempty" yaml:"container-image,omitempty"`
	Inputs        []Input  `json:"inputs" yaml:"inputs"`
	OutputFiles   []Output `json:"output-files" yaml:"output-files"`
}

// Image names the container a tool runs in. Family groups tools that share
// an image tag (selected via configuration or environment).
type Image struct {
	Type   string `json:"type" yaml:"type"`
	Image  string `json:"image" yaml:"image"`
	Family string `json:"family,omitempty" yaml:"family,omitempty"`
}

// Input is one typed command-line input.
type Input struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type     InputType `json:"type" yaml:"type"`
	ValueKey string    `json:"value-key" yaml:"value-key"`
	Flag     string    `json:"command-line-flag,omitempty" yaml:"command-line-flag,omitempty"`
	Optional bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
	List     bool      `json:"list,omitempty" yaml:"list,omitempty"`
	Default  any       `json:"default-value,omitempty" yaml:"default-value,omitempty"`
}

// Output is one declared output artifact with a glob-style location pattern.
type Output struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	PathTemplate string `json:"path-template" yaml:"path-template"`
	Optional     bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// InputByID returns the input with the given ID, or nil.
func (d *Descriptor) InputByID(id string) *Input {
	for i := range d.Inputs {
		if d.Inputs[i].ID == id {
			return &d.Inputs[i]
		}
	}
	return nil
}

// OutputByID returns the output with the given ID, or nil.
func (d *Descriptor) OutputByID(id string) *Output {
	for i := range d.OutputFiles {
		if d.OutputFiles[i].ID == id {
			return &d.OutputFiles[i]
		}
	}
	return nil
}

// ValidationError is one structural defect found in a descriptor.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationResult aggregates structural defects.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}
