// container.go implements one-shot container runs for the docker
// decompiler backend and the cleanup of containers left behind by
// interrupted runs.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/classlens/internal/model"
)

// RunSpec describes a one-shot container run.
type RunSpec struct {
	// Image is the image reference to run. It is pulled when missing.
	Image string

	// Cmd is the command executed in the container.
	Cmd []string

	// Binds are bind mounts in "host:container[:options]" form.
	Binds []string

	// WorkingDir is the working directory inside the container.
	WorkingDir string

	// Labels are added to the container; see BuildLabels.
	Labels map[string]string
}

// RunResult is the outcome of a finished run.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int64
}

// ManagedContainer is a container carrying the classlens labels.
type ManagedContainer struct {
	ID    string
	Name  string
	State string
	Info  RunInfo
}

// buildConfigs converts a RunSpec into the Docker API configuration.
// Networking is disabled: a decompiler only needs the mounted class.
func buildConfigs(spec RunSpec) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkingDir,
		Labels:       spec.Labels,
		AttachStdout: true,
		AttachStderr: true,
	}
	host := &container.HostConfig{
		Binds:       spec.Binds,
		NetworkMode: "none",
	}
	return cfg, host
}

// EnsureImage pulls ref unless it is already present locally.
func (c *Client) EnsureImage(ctx context.Context, ref string) error {
	if _, err := c.api.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect image %s", ref), err)
	}

	rc, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull only completes once its progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// Run creates a container from spec, starts it, waits for it to exit and
// returns its demultiplexed output. The container is always removed, even
// when ctx is cancelled.
func (c *Client) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	cfg, hostCfg := buildConfigs(spec)

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container from %s: %w", spec.Image, err)
	}
	defer func() {
		// Removal must outlive a cancelled request.
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = c.api.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container %s: %w", shortID(created.ID), err)
	}

	statusCh, errCh := c.api.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("failed waiting for container %s: %w", shortID(created.ID), err)
		}
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container %s: %s", shortID(created.ID), status.Error.Message)
		}
		exitCode = status.StatusCode
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	logs, err := c.api.ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs of container %s: %w", shortID(created.ID), err)
	}
	defer logs.Close()

	// Without a TTY the log stream multiplexes stdout and stderr.
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("failed to read logs of container %s: %w", shortID(created.ID), err)
	}

	return &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// ListManaged returns every container, running or not, that carries the
// classlens management label.
func (c *Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	// Docker filters server-side, so unrelated containers never cross the
	// socket.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]ManagedContainer, 0, len(containers))
	for _, s := range containers {
		result = append(result, toManaged(s))
	}
	return result, nil
}

// toManaged converts a Docker API summary into a ManagedContainer. Label
// parse errors leave Info zero-valued rather than hiding the container.
func toManaged(s container.Summary) ManagedContainer {
	name := ""
	if len(s.Names) > 0 {
		// The API prefixes names with "/".
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	info, _ := ParseLabels(s.Labels)
	return ManagedContainer{
		ID:    s.ID,
		Name:  name,
		State: s.State,
		Info:  info,
	}
}

// staleContainers picks the managed containers created before cutoff.
// Containers without a creation label are considered stale.
func staleContainers(containers []ManagedContainer, cutoff time.Time) []ManagedContainer {
	var stale []ManagedContainer
	for _, mc := range containers {
		if mc.Info.CreatedAt.IsZero() || mc.Info.CreatedAt.Before(cutoff) {
			stale = append(stale, mc)
		}
	}
	return stale
}

// RemoveStale force-removes managed containers older than maxAge. Such
// containers are left behind when classlens is killed mid-run. It returns
// how many were removed.
func (c *Client) RemoveStale(ctx context.Context, maxAge time.Duration) (int, error) {
	managed, err := c.ListManaged(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, mc := range staleContainers(managed, time.Now().Add(-maxAge)) {
		if err := c.api.ContainerRemove(ctx, mc.ID, container.RemoveOptions{Force: true}); err != nil {
			return removed, fmt.Errorf("failed to remove container %s: %w", shortID(mc.ID), err)
		}
		removed++
	}
	return removed, nil
}

// shortID truncates a container ID the way the docker CLI prints it.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
