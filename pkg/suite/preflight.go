package suite

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/skooran/nitest/pkg/config"
	"github.com/skooran/nitest/pkg/infra/container"
	"github.com/skooran/nitest/pkg/infra/logger"
)

var (
	ErrRunnerNotFound    = fmt.Errorf("workflow runner executable not found")
	ErrEngineUnavailable = fmt.Errorf("container engine unavailable")
	ErrInsufficientDisk  = fmt.Errorf("insufficient free disk space")
)

// Preflight verifies the environment before any stage runs: the workflow
// runner is on PATH (unless it runs containerized itself), the container
// engine responds, the data layout exists and the data filesystem has
// enough free space.
func Preflight(ctx context.Context, cfg *config.Config, engine container.Client) error {
	if cfg.Runner.Container == "" {
		if _, err := exec.LookPath(cfg.Runner.Executable); err != nil {
			return fmt.Errorf("%w: %s", ErrRunnerNotFound, cfg.Runner.Executable)
		}
	}

	if engine != nil {
		if err := engine.Available(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}

	for _, dir := range []string{
		cfg.General.DerivedDataDir(),
		cfg.General.IntermediateDir(),
		cfg.General.OutputsDir(),
		cfg.General.LogsDir(),
		cfg.General.ReportsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	free, err := freeSpaceMB(cfg.General.DataDir)
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}
	if free >= 0 && free < cfg.Fixture.MinFreeMB {
		return fmt.Errorf("%w: %d MB free under %s, need %d MB",
			ErrInsufficientDisk, free, cfg.General.DataDir, cfg.Fixture.MinFreeMB)
	}

	logger.WithContext(ctx).Debug("preflight passed",
		"runner", cfg.Runner.Executable, "engine", cfg.Runner.Engine, "free_mb", free)
	return nil
}

// EnsureImages pulls any tool images absent from the local engine. Pull
// failures are reported but do not abort: the runner may still resolve the
// image itself at stage time.
func EnsureImages(ctx context.Context, engine container.Client, images []string) []error {
	var errs []error
	for _, image := range images {
		present, err := engine.HasImage(ctx, image)
		if err != nil {
			errs = append(errs, fmt.Errorf("inspect %s: %w", image, err))
			continue
		}
		if present {
			continue
		}

		logger.WithContext(ctx).Info("pulling image", "image", image)
		if err := engine.PullImage(ctx, image); err != nil {
			errs = append(errs, fmt.Errorf("pull %s: %w", image, err))
		}
	}
	return errs
}
