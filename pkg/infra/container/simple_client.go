package container

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SimpleClient is a lightweight engine client shelling out to the engine's
// own CLI. Unlike SDKClient it works with any docker-compatible CLI as well
// as singularity/apptainer.
type SimpleClient struct {
	engine string
}

// NewSimpleClient creates a client for the named engine CLI
// (docker, podman, singularity, apptainer).
func NewSimpleClient(engine string) *SimpleClient {
	return &SimpleClient{engine: engine}
}

// Engine returns the engine CLI name.
func (c *SimpleClient) Engine() string { return c.engine }

func (c *SimpleClient) isSingularity() bool {
	return c.engine == "singularity" || c.engine == "apptainer"
}

// Available checks that the engine CLI responds to `version`.
func (c *SimpleClient) Available(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.engine, "version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s is not available: %w", c.engine, err)
	}
	return nil
}

// HasImage reports whether an image is present locally. Singularity-style
// engines pull images on demand from docker:// URIs, so presence is assumed.
func (c *SimpleClient) HasImage(ctx context.Context, image string) (bool, error) {
	if c.isSingularity() {
		return true, nil
	}

	cmd := exec.CommandContext(ctx, c.engine, "image", "inspect", image)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("%s image inspect: %w", c.engine, err)
	}
	return true, nil
}

// PullImage pulls an image via the engine CLI.
func (c *SimpleClient) PullImage(ctx context.Context, image string) error {
	ref := image
	if c.isSingularity() && !strings.Contains(ref, "://") {
		ref = "docker://" + ref
	}
	cmd := exec.CommandContext(ctx, c.engine, "pull", ref)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s pull %s failed: %w\nOutput: %s", c.engine, image, err, string(output))
	}
	return nil
}

// WrapCommand rewrites argv so it executes inside a container per spec.
// The work directory is bind-mounted at the same absolute path so file
// arguments resolve identically inside and outside.
func (c *SimpleClient) WrapCommand(spec RunSpec, argv []string) []string {
	if c.isSingularity() {
		wrapped := []string{c.engine, "exec", "--bind", spec.WorkDir + ":" + spec.WorkDir, "--pwd", spec.WorkDir}
		for _, e := range spec.Env {
			wrapped = append(wrapped, "--env", e)
		}
		image := spec.Image
		if !strings.Contains(image, "://") {
			image = "docker://" + image
		}
		wrapped = append(wrapped, image)
		return append(wrapped, argv...)
	}

	wrapped := []string{c.engine, "run", "--rm",
		"-v", spec.WorkDir + ":" + spec.WorkDir,
		"-w", spec.WorkDir,
	}
	if spec.Platform != "" {
		wrapped = append(wrapped, "--platform", spec.Platform)
	}
	for _, e := range spec.Env {
		wrapped = append(wrapped, "-e", e)
	}
	wrapped = append(wrapped, spec.Image)
	return append(wrapped, argv...)
}

// Compile-time assertion: SimpleClient must implement Client.
var _ Client = (*SimpleClient)(nil)
