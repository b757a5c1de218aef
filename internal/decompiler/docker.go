package decompiler

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/docker"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/model"
)

const (
	// mountPoint is where the staged class directory appears inside the
	// decompiler container.
	mountPoint = "/classes"

	// staleAfter is the age past which leftover runs are removed.
	staleAfter = time.Hour
)

// Docker runs an external decompiler command inside a container image.
// The staged class directory is bind-mounted read-only at /classes and the
// placeholder in the command is replaced with the in-container path.
type Docker struct {
	client  *docker.Client
	image   string
	command []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewDocker creates the docker backend on an existing client. The backend
// takes ownership of the client and closes it in Close.
func NewDocker(cli *docker.Client, image string, command []string, timeout time.Duration, logger *zap.Logger) (*Docker, error) {
	if strings.TrimSpace(image) == "" {
		return nil, fmt.Errorf("docker decompiler needs an image")
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("docker decompiler needs a command")
	}
	return &Docker{
		client:  cli,
		image:   image,
		command: command,
		timeout: timeout,
		logger:  logging.OrNop(logger),
	}, nil
}

// Prepare pulls the image if needed and removes containers left behind by
// earlier interrupted runs.
func (d *Docker) Prepare(ctx context.Context) error {
	if err := d.client.EnsureImage(ctx, d.image); err != nil {
		return err
	}
	removed, err := d.client.RemoveStale(ctx, staleAfter)
	if err != nil {
		// Leftovers only cost disk space.
		d.logger.Warn("failed to remove stale decompiler containers", zap.Error(err))
		return nil
	}
	if removed > 0 {
		d.logger.Info("removed stale decompiler containers", zap.Int("count", removed))
	}
	return nil
}

// Decompile implements Decompiler.
func (d *Docker) Decompile(ctx context.Context, classPath string, classBytes []byte) (string, error) {
	if err := CheckMagic(classBytes); err != nil {
		return "", err
	}

	dir, file, err := stageClass(classPath, classBytes)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	inContainer := path.Join(mountPoint, filepath.ToSlash(strings.TrimPrefix(file, dir)))
	spec := docker.RunSpec{
		Image:      d.image,
		Cmd:        expandCommand(d.command, inContainer),
		Binds:      []string{dir + ":" + mountPoint + ":ro"},
		WorkingDir: mountPoint,
		Labels:     docker.BuildLabels(docker.RunInfo{Class: classPath, CreatedAt: time.Now()}),
	}

	start := time.Now()
	res, err := d.client.Run(ctx, spec)
	d.logger.Debug("docker decompiler finished",
		zap.String("class", classPath),
		zap.String("image", d.image),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return "", &model.DecompileError{Path: classPath, Err: err}
	}
	if res.ExitCode != 0 {
		return "", &model.DecompileError{
			Path:   classPath,
			Output: strings.TrimSpace(res.Stderr),
			Err:    fmt.Errorf("%s exited with status %d", d.command[0], res.ExitCode),
		}
	}
	return res.Stdout, nil
}

// Close releases the Docker client.
func (d *Docker) Close() error {
	return d.client.Close()
}
