package runner

import (
	"context"
	"encoding/json"
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

// fakeRunner writes a shell script standing in for the workflow runner.
func fakeRunner(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-runner")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func testRunnerConfig(t *testing.T, executable string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.General.DataDir = t.TempDir()
	cfg.Runner.Executable = executable
	cfg.Runner.Engine = "docker"
	cfg.Runner.StageTimeoutD = 10 * time.Second
	return cfg
}

func TestRun_Success(t *testing.T) {
	exe := fakeRunner(t, `echo "launched: $@"`)
	cfg := testRunnerConfig(t, exe)
	r := New(cfg)

	st := &stage.Stage{ID: "fit", Descriptor: "dtifit"}
	res, err := r.Run(context.Background(), st, testDescriptor(), JobSpec{"out": "dti"})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Equal(t, cfg.General.StageOutputDir("fit"), res.OutputDir)

	// Descriptor and job spec are materialized next to each other.
	assert.FileExists(t, filepath.Join(res.OutputDir, "descriptor.json"))
	assert.FileExists(t, filepath.Join(res.OutputDir, "job.json"))

	// Combined output lands in the per-stage log, including the forced engine.
	data, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "launched: exec launch")
	assert.Contains(t, string(data), "--force-docker")
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	exe := fakeRunner(t, `echo "tool failed" >&2; exit 17`)
	cfg := testRunnerConfig(t, exe)
	r := New(cfg)

	st := &stage.Stage{ID: "fit"}
	res, err := r.Run(context.Background(), st, testDescriptor(), JobSpec{})
	require.NoError(t, err, "a failing tool run is a result, not an error")

	assert.Equal(t, 17, res.ExitCode)

	data, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tool failed", "stderr is captured in the log")
}

func TestRun_StageTimeout(t *testing.T) {
	exe := fakeRunner(t, `sleep 10`)
	cfg := testRunnerConfig(t, exe)
	r := New(cfg)

	st := &stage.Stage{ID: "slow", TimeoutD: 100 * time.Millisecond}
	start := time.Now()
	res, err := r.Run(context.Background(), st, testDescriptor(), JobSpec{})
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.NotZero(t, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second, "stage timeout must cut the run short")
}

func TestRun_InvalidDescriptor(t *testing.T) {
	cfg := testRunnerConfig(t, fakeRunner(t, `exit 0`))
	r := New(cfg)

	bad := testDescriptor()
	bad.OutputFiles = nil

	_, err := r.Run(context.Background(), &stage.Stage{ID: "fit"}, bad, JobSpec{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDescriptorInvalid)
}

func TestRun_MissingExecutable(t *testing.T) {
	cfg := testRunnerConfig(t, filepath.Join(t.TempDir(), "does-not-exist"))
	r := New(cfg)

	res, err := r.Run(context.Background(), &stage.Stage{ID: "fit"}, testDescriptor(), JobSpec{})
	require.NoError(t, err)

	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.ExecError)
}

func TestRun_ImageOverrideApplied(t *testing.T) {
	cfg := testRunnerConfig(t, fakeRunner(t, `exit 0`))
	cfg.Images.Tags = map[string]string{"fsl": "brainlife/fsl:6.0.4-patched"}
	r := New(cfg)

	desc := testDescriptor()
	desc.ContainerImg = &descriptor.Image{Type: "docker", Image: "brainlife/fsl:6.0.4", Family: "fsl"}

	res, err := r.Run(context.Background(), &stage.Stage{ID: "fit"}, desc, JobSpec{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(res.OutputDir, "descriptor.json"))
	require.NoError(t, err)

	var written descriptor.Descriptor
	require.NoError(t, json.Unmarshal(data, &written))
	require.NotNil(t, written.ContainerImg)
	assert.Equal(t, "brainlife/fsl:6.0.4-patched", written.ContainerImg.Image)

	// The override is scoped to the materialized copy.
	assert.Equal(t, "brainlife/fsl:6.0.4", desc.ContainerImg.Image)
}

func TestBuildArgv_WrapsRunnerInContainer(t *testing.T) {
	cfg := testRunnerConfig(t, "bosh")
	cfg.Runner.Container = "nitest/runner:latest"
	r := New(cfg)

	// With a runner container configured the invocation becomes
	// `docker run ... <image> bosh exec launch ...`.
	argv := r.buildArgv("/tmp/d.json", "/tmp/j.json")
	require.NotEmpty(t, argv)
	assert.Equal(t, "docker", argv[0])
	assert.Contains(t, argv, "nitest/runner:latest")
	assert.Contains(t, argv, "bosh")
}
