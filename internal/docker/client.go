package docker

import (
	"context"
	"fmt"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/dynaport/internal/model"
)

// pingTimeout bounds the daemon health check. Docker Desktop on macOS can
// take a few seconds to answer after waking up.
const pingTimeout = 5 * time.Second

// windowsPipe is the named pipe Docker Desktop listens on.
const windowsPipe = "npipe:////./pipe/docker_engine"

// Client is a connection to the Docker daemon used to read container port
// bindings.
//
//	c, err := docker.NewClient(ctx)
//	if err != nil { /* Docker not running */ }
//	defer c.Close()
//	bindings, err := c.PublishedPorts(ctx)
type Client struct {
	api containerAPI
	sdk *client.Client
}

// NewClient connects to the Docker daemon and verifies it answers.
//
// The host is taken from DOCKER_HOST when set, otherwise from the first
// existing platform socket:
//   - Linux: /var/run/docker.sock
//   - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//   - Windows: the docker_engine named pipe
//
// Every failure is returned as a model.CLIError with ExitDockerNotRunning.
func NewClient(ctx context.Context) (*Client, error) {
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		detected, err := detectHost(runtime.GOOS, os.UserHomeDir, fileExists)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
		}
		host = detected
	}

	sdk, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host), err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := sdk.Ping(pingCtx); err != nil {
		_ = sdk.Close()
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			"Docker daemon is not responding, is Docker running?", err)
	}

	return &Client{api: sdk, sdk: sdk}, nil
}

// detectHost returns the Docker host URI for goos. The home directory and
// file existence lookups are parameters so the detection can be tested on
// any platform.
func detectHost(goos string, home func() (string, error), exists func(string) bool) (string, error) {
	var candidates []string
	switch goos {
	case "windows":
		// Named pipes cannot be stat'ed; the SDK reports a missing pipe on Ping.
		return windowsPipe, nil
	case "darwin":
		candidates = []string{"/var/run/docker.sock"}
		if dir, err := home(); err == nil {
			candidates = append(candidates, path.Join(dir, ".docker", "run", "docker.sock"))
		}
	case "linux":
		candidates = []string{"/var/run/docker.sock"}
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}

	for _, socket := range candidates {
		if exists(socket) {
			return "unix://" + socket, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v", candidates)
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// Close releases the connection to the daemon. Close is safe to call on a
// Client built around a fake API.
func (c *Client) Close() error {
	if c.sdk != nil {
		return c.sdk.Close()
	}
	return nil
}
