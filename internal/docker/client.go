package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/classlens/internal/model"
)

const (
	// pingTimeout bounds Ping. A paused Docker Desktop accepts the
	// connection and then never answers.
	pingTimeout = 5 * time.Second

	// windowsPipe is the Docker Desktop named pipe.
	windowsPipe = `//./pipe/docker_engine`
)

// errNoSocket is returned by resolveHost when no daemon endpoint exists.
var errNoSocket = errors.New("no Docker socket found (is Docker running?)")

// Client is the subset of the Docker Engine SDK the decompiler backend
// uses: ping, pull, one-shot runs and cleanup of leftover containers.
type Client struct {
	api *client.Client
}

// NewClient connects to the local Docker daemon. DOCKER_HOST is used as-is
// when set; otherwise the platform's usual sockets are tried in order. Creating the
// client does not contact the daemon; call Ping for that.
//
// Failures are model.CLIErrors with ExitDockerNotRunning.
func NewClient() (*Client, error) {
	host, err := resolveHost(os.Getenv, runtime.GOOS)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "cannot locate the Docker daemon", err)
	}
	return dial(host)
}

// dial creates an SDK client for host with API version negotiation.
func dial(host string) (*Client, error) {
	api, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("cannot create Docker client for %q", host), err)
	}
	return &Client{api: api}, nil
}

// resolveHost returns the daemon endpoint: DOCKER_HOST if set, else the
// first socket candidate that exists.
func resolveHost(getenv func(string) string, goos string) (string, error) {
	if host := getenv("DOCKER_HOST"); host != "" {
		return host, nil
	}

	if goos == "windows" {
		// Named pipes cannot be stat'ed; dial to check.
		conn, err := net.DialTimeout("pipe", windowsPipe, time.Second)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", errNoSocket, windowsPipe, err)
		}
		conn.Close()
		return "npipe://" + windowsPipe, nil
	}

	home, _ := os.UserHomeDir()
	return firstSocket(socketCandidates(goos, home))
}

// socketCandidates lists the Unix sockets Docker is usually reachable on.
// Docker Desktop on macOS may only create the one under the home directory.
func socketCandidates(goos, home string) []string {
	candidates := []string{"/var/run/docker.sock"}
	if goos == "darwin" && home != "" {
		candidates = append(candidates, filepath.Join(home, ".docker", "run", "docker.sock"))
	}
	return candidates
}

// firstSocket returns the unix:// URI of the first existing path.
func firstSocket(paths []string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return "unix://" + p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %v", errNoSocket, paths)
}

// Ping checks that the daemon answers within pingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.api.Ping(ctx); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			"Docker daemon is not responding (is Docker running?)", err)
	}
	return nil
}

// Close releases the SDK client. It may be called more than once.
func (c *Client) Close() error {
	if c.api == nil {
		return nil
	}
	return c.api.Close()
}
