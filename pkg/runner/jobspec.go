// Package runner materializes job specifications and drives the external
// workflow runner for one stage at a time.
package runner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/skooran/nitest/pkg/descriptor"
	"github.com/skooran/nitest/pkg/fixture"
	"github.com/skooran/nitest/pkg/resolve"
	"github.com/skooran/nitest/pkg/stage"
)

var (
	ErrUnknownInput    = fmt.Errorf("binding references unknown descriptor input")
	ErrUnboundArtifact = fmt.Errorf("bound artifact not found")
)

// Ref is a typed file or directory reference inside a job specification.
type Ref struct {
	Class string `json:"class"`
	Path  string `json:"path"`
}

// JobSpec maps descriptor input IDs to literal values or typed references.
// It exists only for the duration of one runner invocation.
type JobSpec map[string]any

// BuildJobSpec assembles the job specification for a stage from its input
// bindings: literals verbatim, fixture artifacts as File references, and
// upstream artifacts located through the dependency's resolved directory.
// Unbound optional inputs fall back to their descriptor defaults.
func BuildJobSpec(
	st *stage.Stage,
	desc *descriptor.Descriptor,
	fix *fixture.Paths,
	deps map[string]resolve.Location,
	suite *stage.Suite,
) (JobSpec, error) {
	spec := make(JobSpec, len(st.Inputs))

	for _, b := range st.Inputs {
		in := desc.InputByID(b.Input)
		if in == nil {
			return nil, fmt.Errorf("%w: stage %s binds '%s'", ErrUnknownInput, st.ID, b.Input)
		}

		switch b.From {
		case stage.SourceLiteral:
			spec[b.Input] = b.Value

		case stage.SourceFixture:
			if fix == nil {
				return nil, fmt.Errorf("stage %s: fixture binding '%s' but no fixture materialized", st.ID, b.Input)
			}
			path, err := fix.Artifact(b.Artifact)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", st.ID, err)
			}
			spec[b.Input] = Ref{Class: "File", Path: path}

		case stage.SourceStage:
			ref, err := resolveStageArtifact(b, deps, suite)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", st.ID, err)
			}
			spec[b.Input] = ref

		default:
			return nil, fmt.Errorf("stage %s: unknown binding source '%s'", st.ID, b.From)
		}
	}

	// Defaults for declared inputs left unbound.
	for _, in := range desc.Inputs {
		if _, bound := spec[in.ID]; !bound && in.Default != nil {
			spec[in.ID] = in.Default
		}
	}

	return spec, nil
}

func resolveStageArtifact(b stage.InputBinding, deps map[string]resolve.Location, suite *stage.Suite) (Ref, error) {
	loc, ok := deps[b.Stage]
	if !ok {
		return Ref{}, fmt.Errorf("dependency '%s' was not resolved", b.Stage)
	}

	upstream := suite.StageByID(b.Stage)
	if upstream == nil {
		return Ref{}, fmt.Errorf("upstream stage '%s' not in suite", b.Stage)
	}

	var decl *stage.OutputDecl
	for i := range upstream.Outputs {
		if upstream.Outputs[i].ID == b.Artifact {
			decl = &upstream.Outputs[i]
			break
		}
	}
	if decl == nil {
		return Ref{}, fmt.Errorf("upstream stage '%s' declares no artifact '%s'", b.Stage, b.Artifact)
	}

	path, found := resolve.ResolveArtifact(loc, decl.Path)
	if !found {
		return Ref{}, fmt.Errorf("%w: '%s' of stage '%s' under %s", ErrUnboundArtifact, b.Artifact, b.Stage, loc.Path)
	}

	class := "File"
	if decl.Dir {
		class = "Directory"
	}
	return Ref{Class: class, Path: path}, nil
}

// Write serializes the job specification as indented JSON for the runner.
func (s JobSpec) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job spec: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
