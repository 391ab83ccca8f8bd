// Package suite executes test suites end to end: fixtures, prerequisite
// resolution, stage runs, output validation and result aggregation.
package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skooran/nitest/pkg/config"
	"github.com/skooran/nitest/pkg/descriptor"
	"github.com/skooran/nitest/pkg/fixture"
	"github.com/skooran/nitest/pkg/infra/logger"
	"github.com/skooran/nitest/pkg/resolve"
	"github.com/skooran/nitest/pkg/runner"
	"github.com/skooran/nitest/pkg/stage"
	"github.com/skooran/nitest/pkg/validate"
)

// Stage status values.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusErrored = "errored"
)

var ErrUnknownStage = fmt.Errorf("stage not defined in suite")

// DescriptorLoader resolves a descriptor reference from a stage definition
// to a parsed descriptor. The embedded catalog and plain files both satisfy
// it.
type DescriptorLoader interface {
	Load(name string) (*descriptor.Descriptor, error)
}

// StageResult aggregates everything one stage run produced.
type StageResult struct {
	StageID   string             `json:"stage_id"`
	RunID     string             `json:"run_id"`
	Status    string             `json:"status"`
	ExitCode  int                `json:"exit_code"`
	TimedOut  bool               `json:"timed_out,omitempty"`
	Error     string             `json:"error,omitempty"`
	OutputDir string             `json:"output_dir,omitempty"`
	LogPath   string             `json:"log_path,omitempty"`
	Checks    []validate.Outcome `json:"checks,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// Summary is the aggregate of one suite run, in execution order.
type Summary struct {
	RunID     string        `json:"run_id"`
	Suite     string        `json:"suite"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []StageResult `json:"results"`
	Passed    bool          `json:"passed"`
}

// FailedCount returns the number of stages that did not pass.
func (s *Summary) FailedCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Status != StatusPassed {
			n++
		}
	}
	return n
}

// Executor runs stages of one suite in dependency order. It doubles as the
// resolver's trigger so a missing prerequisite transparently runs its
// producing stage first.
type Executor struct {
	cfg       *config.Config
	suite     *stage.Suite
	loader    DescriptorLoader
	runner    *runner.Runner
	generator *fixture.Generator
	resolver  *resolve.Resolver
	validator *validate.Validator
	store     *Store

	executed map[string]*StageResult
	order    []string
}

func NewExecutor(cfg *config.Config, s *stage.Suite, loader DescriptorLoader) *Executor {
	e := &Executor{
		cfg:       cfg,
		suite:     s,
		loader:    loader,
		runner:    runner.New(cfg),
		generator: fixture.NewGenerator(cfg.General.DerivedDataDir(), cfg.Fixture),
		validator: validate.NewValidator(),
		executed:  make(map[string]*StageResult),
	}
	e.resolver = resolve.New(cfg.General, e)
	return e
}

// WithStore attaches a history store; the summary of each Run is persisted
// through it.
func (e *Executor) WithStore(store *Store) *Executor {
	e.store = store
	return e
}

// Run executes the requested stages (all stages when ids is empty) together
// with their transitive dependencies, in topological order. Stage failures
// are aggregated, not returned: the error covers only setup-level problems
// such as an invalid stage graph.
func (e *Executor) Run(ctx context.Context, ids []string) (*Summary, error) {
	if result := stage.NewGraphValidator().Validate(e.suite); !result.Valid {
		return nil, fmt.Errorf("invalid suite: %w", result.Err())
	}

	var (
		stages []*stage.Stage
		err    error
	)
	if len(ids) == 0 {
		stages, err = stage.TopologicalSort(e.suite)
	} else {
		stages, err = stage.Closure(e.suite, ids)
	}
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		Suite:     e.suite.Name,
		StartedAt: time.Now(),
	}
	ctx = logger.SetRunID(ctx, summary.RunID)
	logger.WithContext(ctx).Info("suite run starting",
		"suite", e.suite.Name, "stages", len(stages))

	for _, st := range stages {
		if _, err := e.ensureStage(ctx, st.ID); err != nil {
			return nil, err
		}
	}

	for _, id := range e.order {
		summary.Results = append(summary.Results, *e.executed[id])
	}
	summary.Duration = time.Since(summary.StartedAt)
	summary.Passed = summary.FailedCount() == 0

	logger.WithContext(ctx).Info("suite run finished",
		"passed", summary.Passed, "stages", len(summary.Results), "failed", summary.FailedCount())

	if e.store != nil {
		if err := e.store.RecordRun(ctx, summary); err != nil {
			logger.WithContext(ctx).Warn("persist run history", "error", err)
		}
	}
	return summary, nil
}

// RunStage makes Executor a resolve.Trigger: the resolver calls it when a
// dependency's outputs are absent from disk.
func (e *Executor) RunStage(ctx context.Context, stageID string) error {
	res, err := e.ensureStage(ctx, stageID)
	if err != nil {
		return err
	}
	if res.Status != StatusPassed {
		return fmt.Errorf("stage %s %s", stageID, res.Status)
	}
	return nil
}

// ensureStage runs a stage exactly once per suite run.
func (e *Executor) ensureStage(ctx context.Context, stageID string) (*StageResult, error) {
	if res, done := e.executed[stageID]; done {
		return res, nil
	}

	st := e.suite.StageByID(stageID)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	res := e.runStage(ctx, st)
	e.executed[stageID] = res
	e.order = append(e.order, stageID)
	return res, nil
}

func (e *Executor) runStage(ctx context.Context, st *stage.Stage) *StageResult {
	res := &StageResult{
		StageID:   st.ID,
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	ctx = logger.SetStage(ctx, st.ID)
	log := logger.WithContext(ctx)
	log.Info("stage starting", "descriptor", st.Descriptor)

	var fix *fixture.Paths
	if st.Fixture != "" {
		p, err := e.generator.Ensure(ctx, st.Fixture)
		if err != nil {
			return errored(res, fmt.Errorf("fixture %s: %w", st.Fixture, err))
		}
		fix = &p
	}

	deps, err := e.resolver.Resolve(ctx, st)
	if err != nil {
		return errored(res, err)
	}

	desc, err := e.loader.Load(st.Descriptor)
	if err != nil {
		return errored(res, fmt.Errorf("descriptor %s: %w", st.Descriptor, err))
	}

	spec, err := runner.BuildJobSpec(st, desc, fix, deps, e.suite)
	if err != nil {
		return errored(res, err)
	}

	runRes, err := e.runner.Run(ctx, st, desc, spec)
	if err != nil {
		return errored(res, err)
	}
	res.ExitCode = runRes.ExitCode
	res.TimedOut = runRes.TimedOut
	res.OutputDir = runRes.OutputDir
	res.LogPath = runRes.LogPath
	if runRes.ExecError != "" {
		res.Error = runRes.ExecError
	}

	// Validation runs even after a failed tool run so partial outputs are
	// visible in the report.
	res.Checks = e.validator.Validate(ctx, runRes.OutputDir, st.Outputs)

	switch {
	case runRes.ExitCode != 0:
		res.Status = StatusFailed
	case !validate.AllPass(res.Checks):
		res.Status = StatusFailed
	default:
		res.Status = StatusPassed
	}
	log.Info("stage finished", "status", res.Status, "exit_code", res.ExitCode)
	return res
}

func errored(res *StageResult, err error) *StageResult {
	res.Status = StatusErrored
	res.ExitCode = -1
	res.Error = err.Error()
	return res
}
