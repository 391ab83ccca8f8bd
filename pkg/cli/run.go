package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/infra/container"
	"github.com/skooran/nitest/pkg/infra/logger"
	"github.com/skooran/nitest/pkg/stage"
	"github.com/skooran/nitest/pkg/suite"
)

func NewRunCommand(root *RootCommand) *cobra.Command {
	var (
		skipPreflight bool
		pullImages    bool
		noReport      bool
	)

	cmd := &cobra.Command{
		Use:   "run <suite> [stage...]",
		Short: "Run a test suite or selected stages",
		Long: `Run the stages of a suite in dependency order. Naming stages restricts
the run to those stages plus their transitive dependencies. The process
exits non-zero when any stage fails.`,
		Example: `  # Run the embedded diffusion smoke suite
  nitest run dwi-smoke

  # Run one stage (dependencies run first when their outputs are absent)
  nitest run dwi-smoke fit

  # Run a suite definition from disk
  nitest run ./suites/custom.yaml --pull-images`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd.Context(), root, args[0], args[1:], runOptions{
				skipPreflight: skipPreflight,
				pullImages:    pullImages,
				writeReport:   !noReport,
			})
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment preflight checks")
	cmd.Flags().BoolVar(&pullImages, "pull-images", false, "Pull missing tool images before running")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Do not persist a JSON report")

	return cmd
}

type runOptions struct {
	skipPreflight bool
	pullImages    bool
	writeReport   bool
}

func runSuite(ctx context.Context, root *RootCommand, suiteRef string, stageIDs []string, opts runOptions) error {
	cfg := root.Config()
	out := root.OutputOptions()

	s, err := root.Loader().LoadSuite(suiteRef)
	if err != nil {
		return err
	}

	engine := engineClient(cfg.Runner.Engine)

	if !opts.skipPreflight {
		if err := suite.Preflight(ctx, cfg, engine); err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
	}

	if opts.pullImages && engine != nil {
		images, err := suiteImages(root, s)
		if err != nil {
			return err
		}
		for _, pullErr := range suite.EnsureImages(ctx, engine, images) {
			logger.Warn("image pull", "error", pullErr)
		}
	}

	executor := suite.NewExecutor(cfg, s, root.Loader())

	if cfg.History.Enabled {
		store, err := suite.NewStore(cfg.History.Path)
		if err != nil {
			logger.Warn("history store unavailable, continuing without it", "error", err)
		} else {
			defer store.Close()
			executor.WithStore(store)
		}
	}

	summary, err := executor.Run(ctx, stageIDs)
	if err != nil {
		return err
	}

	if opts.writeReport {
		if path, err := suite.WriteReport(cfg.General.ReportsDir(), summary); err != nil {
			logger.Warn("persist report", "error", err)
		} else {
			logger.Info("report written", "path", path)
		}
	}

	if out.Format == OutputTable {
		if !out.Quiet {
			if err := suite.RenderTable(out.Writer, summary); err != nil {
				return err
			}
		}
	} else {
		if err := PrintOutput(summary, out); err != nil {
			return err
		}
	}

	if !summary.Passed {
		return fmt.Errorf("suite %s: %d of %d stages failed",
			summary.Suite, summary.FailedCount(), len(summary.Results))
	}
	return nil
}

// engineClient picks the engine-facing client: the native SDK for Docker,
// the CLI fallback for every other engine, nil when no engine is forced.
func engineClient(engine string) container.Client {
	switch engine {
	case "":
		return nil
	case "docker":
		if sdk, err := container.NewSDKClient(); err == nil {
			return sdk
		}
		logger.Warn("docker SDK client unavailable, falling back to CLI")
		return container.NewSimpleClient(engine)
	default:
		return container.NewSimpleClient(engine)
	}
}

// suiteImages collects the images of the descriptors a suite references,
// with configured per-family overrides applied.
func suiteImages(root *RootCommand, s *stage.Suite) ([]string, error) {
	seen := make(map[string]bool)
	var images []string

	for _, ref := range s.DescriptorRefs() {
		d, err := root.Loader().Load(ref)
		if err != nil {
			return nil, fmt.Errorf("descriptor %s: %w", ref, err)
		}
		if d.ContainerImg == nil || d.ContainerImg.Image == "" {
			continue
		}
		img := root.Config().ImageFor(d.ContainerImg.Family, d.ContainerImg.Image)
		if !seen[img] {
			seen[img] = true
			images = append(images, img)
		}
	}
	return images, nil
}
