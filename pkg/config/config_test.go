package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "bosh", cfg.Runner.Executable)
	assert.Equal(t, "docker", cfg.Runner.Engine)
	assert.Equal(t, 3, cfg.Fixture.B0Count)
	assert.Len(t, cfg.Fixture.Shells, 2)
	assert.True(t, cfg.History.Enabled)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotZero(t, cfg.Runner.StageTimeoutD)
	assert.NotEmpty(t, cfg.History.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nitest.toml")
	content := `
[general]
data_dir = "` + dir + `"

[runner]
executable = "/opt/runner/bosh"
engine = "podman"
stage_timeout = "2m"

[fixture]
seed = 7
shells = [700.0, 1000.0, 2800.0]

[images.tags]
fsl = "brainlife/fsl:6.0.4-patched2"
mrtrix = "mrtrix3/mrtrix3:3.0.4"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/runner/bosh", cfg.Runner.Executable)
	assert.Equal(t, "podman", cfg.Runner.Engine)
	assert.Equal(t, int64(7), cfg.Fixture.Seed)
	assert.Len(t, cfg.Fixture.Shells, 3)
	assert.Equal(t, "brainlife/fsl:6.0.4-patched2", cfg.Images.Tags["fsl"])

	// Derived layout hangs off data_dir.
	assert.Equal(t, filepath.Join(dir, "deriveddata"), cfg.General.DerivedDataDir())
	assert.Equal(t, filepath.Join(dir, "outputs", "s1"), cfg.General.StageOutputDir("s1"))
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.History.Path)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NITEST_RUNNER", "/usr/local/bin/cwltool")
	t.Setenv("NITEST_CONTAINER_ENGINE", "singularity")
	t.Setenv("NITEST_CONTAINER_PLATFORM", "linux/amd64")
	t.Setenv("NITEST_IMAGE_AMICO", "cbclab/amico:2.0")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "/usr/local/bin/cwltool", cfg.Runner.Executable)
	assert.Equal(t, "singularity", cfg.Runner.Engine)
	assert.Equal(t, "linux/amd64", cfg.Runner.Platform)
	assert.Equal(t, "cbclab/amico:2.0", cfg.Images.Tags["amico"])
}

func TestImageFor(t *testing.T) {
	cfg := Default()
	cfg.Images.Tags["fsl"] = "custom/fsl:1"

	assert.Equal(t, "custom/fsl:1", cfg.ImageFor("fsl", "default/fsl:0"))
	assert.Equal(t, "custom/fsl:1", cfg.ImageFor("FSL", "default/fsl:0"))
	assert.Equal(t, "default/mrtrix:0", cfg.ImageFor("mrtrix", "default/mrtrix:0"))
	assert.Equal(t, "img", cfg.ImageFor("", "img"))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty runner", mutate: func(c *Config) { c.Runner.Executable = "" }},
		{name: "bad engine", mutate: func(c *Config) { c.Runner.Engine = "lxc" }},
		{name: "zero shape dim", mutate: func(c *Config) { c.Fixture.Shape[1] = 0 }},
		{name: "no b0s", mutate: func(c *Config) { c.Fixture.B0Count = 0 }},
		{name: "single shell", mutate: func(c *Config) { c.Fixture.Shells = []float64{1000} }},
		{name: "negative shell", mutate: func(c *Config) { c.Fixture.Shells = []float64{1000, -5} }},
		{name: "too few directions", mutate: func(c *Config) { c.Fixture.DirsPerShell = 3 }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.postProcess())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_BadTimeout(t *testing.T) {
	t.Setenv("NITEST_STAGE_TIMEOUT", "soon")
	_, err := Load("")
	assert.Error(t, err)
}
