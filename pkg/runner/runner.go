package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/skooran/nitest/pkg/config"
	"github.com/skooran/nitest/pkg/descriptor"
	"github.com/skooran/nitest/pkg/infra/container"
	"github.com/skooran/nitest/pkg/infra/logger"
	"github.com/skooran/nitest/pkg/stage"
)

var ErrDescriptorInvalid = fmt.Errorf("descriptor validation failed")

// Result captures one runner invocation. A non-zero exit code is data, not
// an error: output validation still runs against whatever artifacts exist.
type Result struct {
	StageID   string        `json:"stage_id"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	ExecError string        `json:"exec_error,omitempty"`
	OutputDir string        `json:"output_dir"`
	LogPath   string        `json:"log_path"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Runner drives the external workflow runner for single stages.
type Runner struct {
	cfg       *config.Config
	validator *descriptor.Validator
}

func New(cfg *config.Config) *Runner {
	return &Runner{
		cfg:       cfg,
		validator: descriptor.NewValidator(),
	}
}

// Run executes one stage: validate the descriptor, materialize descriptor
// and job files into the stage's isolated output directory, invoke the
// workflow runner with combined output captured to the stage log, and
// record the exit status.
//
// Only a descriptor validation failure (or an inability to set up the
// output directory) returns an error; those abort the stage before any job
// is attempted. Everything after submission is captured in the Result.
func (r *Runner) Run(ctx context.Context, st *stage.Stage, desc *descriptor.Descriptor, spec JobSpec) (*Result, error) {
	if result := r.validator.Validate(desc); !result.Valid {
		return nil, fmt.Errorf("%w: %s: %s", ErrDescriptorInvalid, st.ID, result.Errors[0].Error())
	}

	outputDir := r.cfg.General.StageOutputDir(st.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage output dir: %w", err)
	}
	if err := os.MkdirAll(r.cfg.General.LogsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	descPath := filepath.Join(outputDir, "descriptor.json")
	if err := r.materializeDescriptor(desc, descPath); err != nil {
		return nil, err
	}

	jobPath := filepath.Join(outputDir, "job.json")
	if err := spec.Write(jobPath); err != nil {
		return nil, fmt.Errorf("write job spec: %w", err)
	}

	logPath := filepath.Join(r.cfg.General.LogsDir(), st.ID+".log")

	timeout := st.TimeoutD
	if timeout <= 0 {
		timeout = r.cfg.Runner.StageTimeoutD
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := r.buildArgv(descPath, jobPath)
	logger.WithContext(ctx).Info("invoking workflow runner",
		"stage", st.ID, "argv", argv, "timeout", timeout)

	res := &Result{
		StageID:   st.ID,
		OutputDir: outputDir,
		LogPath:   logPath,
		StartedAt: time.Now(),
	}
	r.execute(runCtx, argv, outputDir, logPath, res)
	res.Duration = time.Since(res.StartedAt)

	if res.ExitCode != 0 {
		logger.WithContext(ctx).Warn("runner exited non-zero",
			"stage", st.ID, "exit_code", res.ExitCode, "timed_out", res.TimedOut, "log", logPath)
	}
	return res, nil
}

// materializeDescriptor writes the descriptor next to the job spec so the
// external runner always consumes a real file, whether the descriptor came
// from disk or the embedded catalog. The per-family image override is
// applied here.
func (r *Runner) materializeDescriptor(desc *descriptor.Descriptor, path string) error {
	d := *desc
	if d.ContainerImg != nil {
		img := *d.ContainerImg
		img.Image = r.cfg.ImageFor(img.Family, img.Image)
		d.ContainerImg = &img
	}

	data, err := d.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

func (r *Runner) buildArgv(descPath, jobPath string) []string {
	argv := []string{r.cfg.Runner.Executable, "exec", "launch", descPath, jobPath}
	if r.cfg.Runner.Engine != "" {
		argv = append(argv, "--force-"+r.cfg.Runner.Engine)
	}

	if r.cfg.Runner.Container != "" {
		cli := container.NewSimpleClient(r.cfg.Runner.Engine)
		argv = cli.WrapCommand(container.RunSpec{
			Image:    r.cfg.Runner.Container,
			Platform: r.cfg.Runner.Platform,
			WorkDir:  r.cfg.General.DataDir,
		}, argv)
	}
	return argv
}

func (r *Runner) execute(ctx context.Context, argv []string, workDir, logPath string, res *Result) {
	logFile, err := os.Create(logPath)
	if err != nil {
		res.ExitCode = -1
		res.ExecError = fmt.Sprintf("create log file: %v", err)
		return
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if r.cfg.Runner.Platform != "" {
		cmd.Env = append(os.Environ(), "DOCKER_DEFAULT_PLATFORM="+r.cfg.Runner.Platform)
	}

	err = cmd.Run()
	if err == nil {
		res.ExitCode = 0
		return
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		res.ExecError = "stage timeout exceeded"
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return
	}

	// Start failures (missing executable, permission) surface as an errored
	// result; preflight should normally catch these before any stage runs.
	res.ExitCode = -1
	res.ExecError = err.Error()
}
