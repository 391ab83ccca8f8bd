package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General Paths         `toml:"general"`
	Runner  RunnerConfig  `toml:"runner"`
	Fixture FixtureConfig `toml:"fixture"`
	Images  ImagesConfig  `toml:"images"`
	History HistoryConfig `toml:"history"`
	Logging LoggingConfig `toml:"logging"`
}

// Paths anchors the harness's on-disk layout. All stage-relative locations
// (derived data, intermediate results, outputs, logs, reports) hang off
// DataDir so one suite run shares one root.
type Paths struct {
	DataDir string `toml:"data_dir"`
}

// DerivedDataDir holds generated fixtures.
func (p Paths) DerivedDataDir() string { return filepath.Join(p.DataDir, "deriveddata") }

// IntermediateDir is the primary candidate location for upstream artifacts.
func (p Paths) IntermediateDir() string { return filepath.Join(p.DataDir, "intermediate") }

// OutputsDir holds per-stage output directories.
func (p Paths) OutputsDir() string { return filepath.Join(p.DataDir, "outputs") }

// StageOutputDir is the isolated output directory of one stage.
func (p Paths) StageOutputDir(stageID string) string {
	return filepath.Join(p.OutputsDir(), stageID)
}

// LogsDir holds per-stage combined stdout/stderr logs.
func (p Paths) LogsDir() string { return filepath.Join(p.DataDir, "logs") }

// ReportsDir holds persisted suite summaries.
func (p Paths) ReportsDir() string { return filepath.Join(p.DataDir, "reports") }

// HistoryDBPath is the default run-history database location.
func (p Paths) HistoryDBPath() string { return filepath.Join(p.DataDir, "history.db") }

type RunnerConfig struct {
	// Executable is the workflow runner binary (resolved via PATH if relative).
	Executable string `toml:"executable"`
	// Engine selects the container engine the runner is told to use
	// (docker, podman, singularity). Empty lets the runner decide.
	Engine string `toml:"engine"`
	// Platform overrides the container platform (e.g. linux/amd64).
	Platform string `toml:"platform"`
	// Container, when set, wraps the runner invocation itself in
	// `<engine> run --rm` with this image.
	Container string `toml:"container"`
	// StageTimeout bounds one runner invocation. A hung tool run fails the
	// stage instead of blocking the suite.
	StageTimeout  string        `toml:"stage_timeout"`
	StageTimeoutD time.Duration `toml:"-"`
}

type FixtureConfig struct {
	// Seed makes fixture synthesis reproducible.
	Seed int64 `toml:"seed"`
	// Shape is the spatial extent of synthetic volumes (X Y Z).
	Shape [3]int `toml:"shape"`
	// B0Count is the number of zero-gradient acquisitions.
	B0Count int `toml:"b0_count"`
	// Shells are the non-zero b-values; each shell gets DirsPerShell
	// unit-norm directions.
	Shells       []float64 `toml:"shells"`
	DirsPerShell int       `toml:"dirs_per_shell"`
	// MinFreeMB aborts suite setup when the data dir's filesystem has less
	// free space than this.
	MinFreeMB int64 `toml:"min_free_mb"`
}

// ImagesConfig maps tool families to container image tags, e.g.
// fsl = "brainlife/fsl:6.0.4". Overridable per family via NITEST_IMAGE_<FAMILY>.
type ImagesConfig struct {
	Tags map[string]string `toml:"tags"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".nitest")

	return &Config{
		General: Paths{
			DataDir: dataDir,
		},
		Runner: RunnerConfig{
			Executable:   "bosh",
			Engine:       "docker",
			Platform:     "",
			Container:    "",
			StageTimeout: "15m",
		},
		Fixture: FixtureConfig{
			Seed:         42,
			Shape:        [3]int{8, 8, 4},
			B0Count:      3,
			Shells:       []float64{1000, 2000},
			DirsPerShell: 15,
			MinFreeMB:    256,
		},
		Images: ImagesConfig{
			Tags: map[string]string{},
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	var err error

	if c.Runner.StageTimeoutD, err = time.ParseDuration(c.Runner.StageTimeout); err != nil {
		return fmt.Errorf("parse runner.stage_timeout: %w", err)
	}

	c.General.DataDir, err = expandPath(c.General.DataDir)
	if err != nil {
		return fmt.Errorf("expand general.data_dir: %w", err)
	}

	if c.History.Path == "" {
		c.History.Path = c.General.HistoryDBPath()
	}
	c.History.Path, err = expandPath(c.History.Path)
	if err != nil {
		return fmt.Errorf("expand history.path: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Runner.Executable == "" {
		return fmt.Errorf("runner.executable must not be empty")
	}

	validEngines := map[string]bool{"": true, "docker": true, "podman": true, "singularity": true, "apptainer": true}
	if !validEngines[c.Runner.Engine] {
		return fmt.Errorf("invalid runner.engine: %s (valid: docker, podman, singularity, apptainer)", c.Runner.Engine)
	}

	if c.Runner.StageTimeoutD <= 0 {
		return fmt.Errorf("runner.stage_timeout must be positive, got %s", c.Runner.StageTimeout)
	}

	for i, d := range c.Fixture.Shape {
		if d < 1 {
			return fmt.Errorf("fixture.shape[%d] must be at least 1, got %d", i, d)
		}
	}
	if c.Fixture.B0Count < 1 {
		return fmt.Errorf("fixture.b0_count must be at least 1, got %d", c.Fixture.B0Count)
	}
	if len(c.Fixture.Shells) < 2 {
		return fmt.Errorf("fixture.shells needs at least 2 shells, got %d", len(c.Fixture.Shells))
	}
	for _, b := range c.Fixture.Shells {
		if b <= 0 {
			return fmt.Errorf("fixture shell b-values must be positive, got %.1f", b)
		}
	}
	if c.Fixture.DirsPerShell < 6 {
		return fmt.Errorf("fixture.dirs_per_shell must be at least 6, got %d", c.Fixture.DirsPerShell)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NITEST_DATA_DIR"); v != "" {
		cfg.General.DataDir = v
	}
	if v := os.Getenv("NITEST_RUNNER"); v != "" {
		cfg.Runner.Executable = v
	}
	if v := os.Getenv("NITEST_CONTAINER_ENGINE"); v != "" {
		cfg.Runner.Engine = v
	}
	if v := os.Getenv("NITEST_CONTAINER_PLATFORM"); v != "" {
		cfg.Runner.Platform = v
	}
	if v := os.Getenv("NITEST_RUNNER_CONTAINER"); v != "" {
		cfg.Runner.Container = v
	}
	if v := os.Getenv("NITEST_STAGE_TIMEOUT"); v != "" {
		cfg.Runner.StageTimeout = v
	}
	if v := os.Getenv("NITEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NITEST_HISTORY"); v != "" {
		cfg.History.Enabled = strings.ToLower(v) == "true" || v == "1"
	}

	// Per-family image tags: NITEST_IMAGE_FSL=brainlife/fsl:6.0.4 overrides
	// images.tags.fsl.
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		family, found := strings.CutPrefix(name, "NITEST_IMAGE_")
		if !found || family == "" {
			continue
		}
		if cfg.Images.Tags == nil {
			cfg.Images.Tags = map[string]string{}
		}
		cfg.Images.Tags[strings.ToLower(family)] = value
	}
}

// ImageFor returns the configured image tag for a tool family, falling back
// to the descriptor's own image when no override exists.
func (c *Config) ImageFor(family, fallback string) string {
	if family != "" {
		if tag, ok := c.Images.Tags[strings.ToLower(family)]; ok && tag != "" {
			return tag
		}
	}
	return fallback
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
