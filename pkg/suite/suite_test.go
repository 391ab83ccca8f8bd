package suite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skooran/nitest/pkg/config"
	"github.com/skooran/nitest/pkg/descriptor"
	"github.com/skooran/nitest/pkg/stage"
)

type mapLoader map[string]*descriptor.Descriptor

func (m mapLoader) Load(name string) (*descriptor.Descriptor, error) {
	d, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no descriptor %q", name)
	}
	return d, nil
}

func copyToolDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name:        "copytool",
		CommandLine: "copytool [IN] [OUT]",
		Inputs: []descriptor.Input{
			{ID: "in", Type: descriptor.InputFile, ValueKey: "[IN]"},
			{ID: "out", Type: descriptor.InputString, ValueKey: "[OUT]", Optional: true, Default: "result.txt"},
		},
		OutputFiles: []descriptor.Output{
			{ID: "out_file", PathTemplate: "[OUT]"},
		},
	}
}

// stageScript writes a shell script standing in for the workflow runner.
// The runner executes it with the stage output directory as working
// directory, so plain relative writes land where validation looks.
func stageScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-runner")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testSuiteConfig(t *testing.T, executable string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.General.DataDir = t.TempDir()
	cfg.Runner.Executable = executable
	cfg.Runner.Engine = ""
	cfg.Runner.StageTimeoutD = 30 * time.Second
	return cfg
}

func fixtureStage(id string) stage.Stage {
	return stage.Stage{
		ID:         id,
		Descriptor: "copytool",
		Fixture:    "dwi-smoke",
		Inputs: []stage.InputBinding{
			{Input: "in", From: stage.SourceFixture, Artifact: "dwi"},
		},
		Outputs: []stage.OutputDecl{
			{ID: "result", Path: "result.txt", NonEmpty: true},
		},
	}
}

func TestExecutor_SingleStagePasses(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `echo data > result.txt`))
	s := &stage.Suite{Name: "smoke", Stages: []stage.Stage{fixtureStage("convert")}}

	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()})
	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, summary.Passed)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Results, 1)

	r := summary.Results[0]
	assert.Equal(t, StatusPassed, r.Status)
	assert.Equal(t, 0, r.ExitCode)
	assert.NotEmpty(t, r.Checks)

	// The fixture was materialized under the derived data root.
	assert.FileExists(t, filepath.Join(cfg.General.DerivedDataDir(), "dwi-smoke", "dwi.nii.gz"))
}

func TestExecutor_ClosureRunsDependenciesFirst(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `echo data > result.txt`))
	s := &stage.Suite{Name: "chained", Stages: []stage.Stage{
		fixtureStage("denoise"),
		{
			ID:         "fit",
			Descriptor: "copytool",
			DependsOn:  []string{"denoise"},
			Inputs: []stage.InputBinding{
				{Input: "in", From: stage.SourceStage, Stage: "denoise", Artifact: "result"},
			},
			Outputs: []stage.OutputDecl{
				{ID: "result", Path: "result.txt", NonEmpty: true},
			},
		},
	}}

	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()})
	// Requesting only the downstream stage pulls in its dependency.
	summary, err := e.Run(context.Background(), []string{"fit"})
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, "denoise", summary.Results[0].StageID)
	assert.Equal(t, "fit", summary.Results[1].StageID)
	assert.True(t, summary.Passed)
}

func TestExecutor_NonZeroExitFailsStage(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `echo boom >&2; exit 3`))
	s := &stage.Suite{Name: "failing", Stages: []stage.Stage{fixtureStage("convert")}}

	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()})
	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err, "stage failures aggregate, they are not run errors")

	assert.False(t, summary.Passed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, StatusFailed, summary.Results[0].Status)
	assert.Equal(t, 3, summary.Results[0].ExitCode)
	// Output validation still ran against the (empty) output directory.
	assert.NotEmpty(t, summary.Results[0].Checks)
}

func TestExecutor_MissingDeclaredOutputFailsStage(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `exit 0`))
	s := &stage.Suite{Name: "hollow", Stages: []stage.Stage{fixtureStage("convert")}}

	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()})
	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	r := summary.Results[0]
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 0, r.ExitCode, "the tool exited cleanly; validation caught the gap")
	require.NotEmpty(t, r.Checks)
	assert.False(t, r.Checks[0].Pass)
}

func TestExecutor_UnknownDescriptorErrorsStage(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `exit 0`))
	s := &stage.Suite{Name: "broken", Stages: []stage.Stage{fixtureStage("convert")}}

	e := NewExecutor(cfg, s, mapLoader{})
	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, StatusErrored, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, "copytool")
	assert.False(t, summary.Passed)
}

func TestExecutor_CyclicSuiteIsARunError(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `exit 0`))
	s := &stage.Suite{Name: "cyclic", Stages: []stage.Stage{
		{ID: "a", Descriptor: "copytool", DependsOn: []string{"b"},
			Outputs: []stage.OutputDecl{{ID: "r", Path: "r.txt"}}},
		{ID: "b", Descriptor: "copytool", DependsOn: []string{"a"},
			Outputs: []stage.OutputDecl{{ID: "r", Path: "r.txt"}}},
	}}

	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()})
	_, err := e.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestExecutor_StageRunsOncePerSuiteRun(t *testing.T) {
	// Count invocations through a side-effect file next to the script.
	dir := t.TempDir()
	counter := filepath.Join(dir, "count")
	script := stageScript(t, fmt.Sprintf(`echo x >> %s; echo data > result.txt`, counter))
	cfg := testSuiteConfig(t, script)

	shared := fixtureStage("shared")
	s := &stage.Suite{Name: "diamond", Stages: []stage.Stage{
		shared,
		{
			ID: "left", Descriptor: "copytool", DependsOn: []string{"shared"},
			Inputs: []stage.InputBinding{
				{Input: "in", From: stage.SourceStage, Stage: "shared", Artifact: "result"},
			},
			Outputs: []stage.OutputDecl{{ID: "result", Path: "result.txt", NonEmpty: true}},
		},
		{
			ID: "right", Descriptor: "copytool", DependsOn: []string{"shared"},
			Inputs: []stage.InputBinding{
				{Input: "in", From: stage.SourceStage, Stage: "shared", Artifact: "result"},
			},
			Outputs: []stage.OutputDecl{{ID: "result", Path: "result.txt", NonEmpty: true}},
		},
	}}

	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()})
	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, summary.Passed)

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Len(t, summary.Results, 3)
	assert.Equal(t, "x\nx\nx\n", string(data), "three stages, three runner invocations")
}

func TestExecutor_RecordsHistory(t *testing.T) {
	cfg := testSuiteConfig(t, stageScript(t, `echo data > result.txt`))
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	s := &stage.Suite{Name: "smoke", Stages: []stage.Stage{fixtureStage("convert")}}
	e := NewExecutor(cfg, s, mapLoader{"copytool": copyToolDescriptor()}).WithStore(store)

	summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, "smoke", runs[0].Suite)
	assert.True(t, runs[0].Passed)

	results, err := store.StageResults(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "convert", results[0].StageID)
	assert.Equal(t, StatusPassed, results[0].Status)
	assert.NotEmpty(t, results[0].Checks)
}
