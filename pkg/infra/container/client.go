// Package container abstracts the container engines the workflow runner
// delegates to. The harness only needs preflight-level operations: is the
// engine reachable, is an image present, pull it if not, and wrap a command
// line so it executes inside a container.
package container

import "context"

// Client is the engine-facing preflight interface.
type Client interface {
	// Available reports whether the engine can be reached at all.
	// An error here is a setup error: the suite must not start.
	Available(ctx context.Context) error
	// HasImage reports whether the image tag is present locally.
	HasImage(ctx context.Context, image string) (bool, error)
	// PullImage fetches the image tag.
	PullImage(ctx context.Context, image string) error
}

// RunSpec describes how to wrap a command so it runs inside a container.
type RunSpec struct {
	Image    string
	Platform string
	// WorkDir is bind-mounted into the container and set as the working
	// directory, so the wrapped command sees the same absolute paths.
	WorkDir string
	Env     []string
}
