// Package resolve binds a stage's declared upstream dependencies to concrete
// directories on disk before the stage's job is submitted.
//
// Each dependency is probed through an ordered list of locator strategies.
// When every strategy misses, the upstream stage's full test run is
// triggered and the same strategies are probed again; a second miss is a
// fatal prerequisite error for the dependent stage.
package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skooran/nitest/pkg/config"
	"github.com/skooran/nitest/pkg/infra/logger"
	"github.com/skooran/nitest/pkg/stage"
)

var (
	ErrMissingPrerequisite = fmt.Errorf("missing prerequisite")
	ErrDependencyCycle     = fmt.Errorf("dependency cycle")
)

// Trigger runs a stage's full test procedure (not mere fixture generation).
// The suite executor implements this; the resolver stays ignorant of how
// stages actually run.
type Trigger interface {
	RunStage(ctx context.Context, stageID string) error
}

// Location is a successfully bound dependency directory, tagged with the
// strategy that found it.
type Location struct {
	Path     string
	Strategy string
}

// strategy probes one candidate directory layout for a stage's outputs.
type strategy struct {
	name string
	dir  func(stageID string) string
}

// Resolver resolves upstream outputs for stages of one suite run.
type Resolver struct {
	paths      config.Paths
	trigger    Trigger
	strategies []strategy

	// inProgress guards the recursive trigger: a dependency that is already
	// being resolved higher up the call chain is a cycle, reported as an
	// explicit error rather than unbounded recursion.
	inProgress map[string]bool
}

// New creates a resolver. The candidate order is fixed: the shared
// intermediate-results location first, then the upstream stage's own output
// directory.
func New(paths config.Paths, trigger Trigger) *Resolver {
	return &Resolver{
		paths:   paths,
		trigger: trigger,
		strategies: []strategy{
			{name: "intermediate", dir: func(id string) string {
				return filepath.Join(paths.IntermediateDir(), id)
			}},
			{name: "stage-output", dir: paths.StageOutputDir},
		},
		inProgress: make(map[string]bool),
	}
}

// Resolve binds every dependency of st to a directory, triggering upstream
// runs as needed. On success the returned map has one entry per dependency.
// On failure the stage must not submit a job.
func (r *Resolver) Resolve(ctx context.Context, st *stage.Stage) (map[string]Location, error) {
	resolved := make(map[string]Location, len(st.DependsOn))

	for _, dep := range st.DependsOn {
		loc, ok := r.locate(dep)
		if !ok {
			if err := r.triggerUpstream(ctx, st.ID, dep); err != nil {
				return nil, err
			}
			loc, ok = r.locate(dep)
			if !ok {
				return nil, fmt.Errorf("%w: stage %s requires outputs of %s, absent after triggering its run",
					ErrMissingPrerequisite, st.ID, dep)
			}
		}
		logger.WithContext(ctx).Debug("prerequisite bound",
			"stage", st.ID, "dependency", dep, "path", loc.Path, "strategy", loc.Strategy)
		resolved[dep] = loc
	}

	return resolved, nil
}

func (r *Resolver) triggerUpstream(ctx context.Context, stageID, dep string) error {
	if r.inProgress[dep] {
		return fmt.Errorf("%w: %s transitively depends on itself via %s", ErrDependencyCycle, dep, stageID)
	}

	logger.WithContext(ctx).Info("prerequisite missing, triggering upstream run",
		"stage", stageID, "dependency", dep)

	r.inProgress[dep] = true
	defer delete(r.inProgress, dep)

	if err := r.trigger.RunStage(ctx, dep); err != nil {
		return fmt.Errorf("%w: triggered run of %s failed: %v", ErrMissingPrerequisite, dep, err)
	}
	return nil
}

// locate probes the candidate locations in order. A hit is a directory that
// exists and contains at least one entry.
func (r *Resolver) locate(stageID string) (Location, bool) {
	for _, s := range r.strategies {
		dir := s.dir(stageID)
		if dirHasEntries(dir) {
			return Location{Path: dir, Strategy: s.name}, true
		}
	}
	return Location{}, false
}

// ResolveArtifact locates one artifact inside a resolved dependency
// directory: the declared relative path first, then a flattened fallback
// (basename directly under the directory) to absorb the runner's output
// isolation ambiguity.
func ResolveArtifact(loc Location, declPath string) (string, bool) {
	primary := filepath.Join(loc.Path, declPath)
	if _, err := os.Stat(primary); err == nil {
		return primary, true
	}

	flat := filepath.Join(loc.Path, filepath.Base(declPath))
	if flat != primary {
		if _, err := os.Stat(flat); err == nil {
			return flat, true
		}
	}
	return "", false
}

func dirHasEntries(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
