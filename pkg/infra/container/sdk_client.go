package container

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
)

// SDKClient implements Client for Docker using the official Go SDK.
type SDKClient struct {
	cli *dockerclient.Client
}

// NewSDKClient creates an SDKClient configured from environment variables
// (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH, DOCKER_API_VERSION).
func NewSDKClient() (*SDKClient, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

// Available pings the Docker daemon.
func (c *SDKClient) Available(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// HasImage reports whether the image tag exists locally.
func (c *SDKClient) HasImage(ctx context.Context, img string) (bool, error) {
	f := filters.NewArgs()
	f.Add("reference", img)

	images, err := c.cli.ImageList(ctx, image.ListOptions{Filters: f})
	if err != nil {
		return false, fmt.Errorf("docker ImageList: %w", err)
	}
	return len(images) > 0, nil
}

// PullImage pulls an image, draining the progress stream.
func (c *SDKClient) PullImage(ctx context.Context, img string) error {
	rc, err := c.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker ImagePull %s: %w", img, err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

// Compile-time assertion: SDKClient must implement Client.
var _ Client = (*SDKClient)(nil)
