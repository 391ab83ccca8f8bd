package stage

import (
	"fmt"
	"strings"
)

// GraphValidator checks the stage dependency graph of a suite: stage and
// binding references must resolve, and the graph must be acyclic. The
// harness relies on this up-front check instead of guarding every recursive
// prerequisite trigger at runtime.
type GraphValidator struct{}

func NewGraphValidator() *GraphValidator {
	return &GraphValidator{}
}

func (v *GraphValidator) Validate(s *Suite) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	v.validateStages(s, result)
	v.validateDependencies(s, result)
	v.validateBindings(s, result)

	return result
}

func (v *GraphValidator) validateStages(s *Suite, result *ValidationResult) {
	stageIDs := make(map[string]int)

	for i, st := range s.Stages {
		if st.ID == "" {
			result.addError(fmt.Sprintf("stages[%d].id", i), "stage ID is empty")
			continue
		}

		if prev, dup := stageIDs[st.ID]; dup {
			result.addError(fmt.Sprintf("stages[%d].id", i),
				fmt.Sprintf("duplicate stage ID '%s' (first defined at stages[%d])", st.ID, prev))
		}
		stageIDs[st.ID] = i

		if st.Descriptor == "" {
			result.addError(fmt.Sprintf("stages[%d].descriptor", i), "stage has no descriptor")
		}

		if len(st.Outputs) == 0 {
			result.addError(fmt.Sprintf("stages[%d].outputs", i), "stage declares no outputs")
		}
	}
}

func (v *GraphValidator) validateDependencies(s *Suite, result *ValidationResult) {
	stageIDs := make(map[string]bool)
	for _, st := range s.Stages {
		stageIDs[st.ID] = true
	}

	for _, st := range s.Stages {
		for _, dep := range st.DependsOn {
			if !stageIDs[dep] {
				result.addError(fmt.Sprintf("stages.%s.depends_on", st.ID),
					fmt.Sprintf("dependency '%s' references non-existent stage", dep))
			}
			if dep == st.ID {
				result.addError(fmt.Sprintf("stages.%s.depends_on", st.ID),
					"stage cannot depend on itself")
			}
		}
	}

	if err := v.detectCycles(s); err != nil {
		result.addError("stages", err.Error())
	}
}

func (v *GraphValidator) validateBindings(s *Suite, result *ValidationResult) {
	stageIDs := make(map[string]bool)
	for _, st := range s.Stages {
		stageIDs[st.ID] = true
	}

	for _, st := range s.Stages {
		deps := make(map[string]bool)
		for _, dep := range st.DependsOn {
			deps[dep] = true
		}

		for j, b := range st.Inputs {
			field := fmt.Sprintf("stages.%s.inputs[%d]", st.ID, j)

			if b.Input == "" {
				result.addError(field, "binding names no descriptor input")
			}

			switch b.From {
			case SourceLiteral:
				if b.Value == nil {
					result.addError(field, "literal binding has no value")
				}
			case SourceFixture:
				if st.Fixture == "" {
					result.addError(field, "fixture binding on a stage with no fixture")
				}
				if b.Artifact == "" {
					result.addError(field, "fixture binding names no artifact")
				}
			case SourceStage:
				if !stageIDs[b.Stage] {
					result.addError(field,
						fmt.Sprintf("binding references non-existent stage '%s'", b.Stage))
				} else if !deps[b.Stage] {
					result.addError(field,
						fmt.Sprintf("binding references stage '%s' not listed in depends_on", b.Stage))
				}
				if b.Artifact == "" {
					result.addError(field, "stage binding names no artifact")
				}
			default:
				result.addError(field, fmt.Sprintf("unknown binding source '%s'", b.From))
			}
		}
	}
}

func (v *GraphValidator) detectCycles(s *Suite) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	stageMap := make(map[string]*Stage)

	for i := range s.Stages {
		stageMap[s.Stages[i].ID] = &s.Stages[i]
	}

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true
		cyclePath = append(cyclePath, id)

		st, exists := stageMap[id]
		if !exists {
			return false
		}

		for _, dep := range st.DependsOn {
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			} else if recStack[dep] {
				cyclePath = append(cyclePath, dep)
				return true
			}
		}

		recStack[id] = false
		cyclePath = cyclePath[:len(cyclePath)-1]
		return false
	}

	for _, st := range s.Stages {
		if !visited[st.ID] {
			cyclePath = []string{}
			if dfs(st.ID) {
				if len(cyclePath) >= 2 {
					cycleStart := cyclePath[len(cyclePath)-1]
					var clean []string
					for _, id := range cyclePath {
						if id == cycleStart && len(clean) > 0 {
							break
						}
						clean = append(clean, id)
					}
					return fmt.Errorf("circular dependency detected: %s", strings.Join(clean, " -> "))
				}
				return fmt.Errorf("circular dependency detected involving: %s", st.ID)
			}
		}
	}

	return nil
}

// TopologicalSort orders stages so that every stage follows all of its
// dependencies (Kahn's algorithm). Returns an error if a cycle prevents a
// complete ordering.
func TopologicalSort(s *Suite) ([]*Stage, error) {
	stageMap := make(map[string]*Stage)
	inDegree := make(map[string]int)

	for i := range s.Stages {
		st := &s.Stages[i]
		stageMap[st.ID] = st
		inDegree[st.ID] = len(st.DependsOn)
	}

	var queue []string
	for _, st := range s.Stages {
		if inDegree[st.ID] == 0 {
			queue = append(queue, st.ID)
		}
	}

	var sorted []*Stage
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, stageMap[id])

		for _, st := range s.Stages {
			for _, dep := range st.DependsOn {
				if dep == id {
					inDegree[st.ID]--
					if inDegree[st.ID] == 0 {
						queue = append(queue, st.ID)
					}
				}
			}
		}
	}

	if len(sorted) != len(s.Stages) {
		return nil, fmt.Errorf("cycle detected in stage graph")
	}

	return sorted, nil
}

// Closure returns the transitive dependency closure of the requested stage
// IDs, in topological order. With no IDs it returns all stages.
func Closure(s *Suite, ids []string) ([]*Stage, error) {
	sorted, err := TopologicalSort(s)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sorted, nil
	}

	wanted := make(map[string]bool)
	var mark func(id string) error
	mark = func(id string) error {
		if wanted[id] {
			return nil
		}
		st := s.StageByID(id)
		if st == nil {
			return fmt.Errorf("unknown stage '%s'", id)
		}
		wanted[id] = true
		for _, dep := range st.DependsOn {
			if err := mark(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range ids {
		if err := mark(id); err != nil {
			return nil, err
		}
	}

	var out []*Stage
	for _, st := range sorted {
		if wanted[st.ID] {
			out = append(out, st)
		}
	}
	return out, nil
}
