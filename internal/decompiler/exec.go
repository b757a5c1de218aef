package decompiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/model"
)

// Exec runs an external decompiler command once per class.
//
// The class bytes are written to a fresh temporary directory under their
// package path, the placeholder in the command is replaced by that file,
// and the command's stdout becomes the source text. A non-zero exit is
// reported as a *model.DecompileError carrying the command's stderr.
type Exec struct {
	command []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExec creates the exec backend. command must name at least the
// program to run.
func NewExec(command []string, timeout time.Duration, logger *zap.Logger) (*Exec, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("exec decompiler needs a command")
	}
	return &Exec{command: command, timeout: timeout, logger: logging.OrNop(logger)}, nil
}

// Decompile implements Decompiler.
func (e *Exec) Decompile(ctx context.Context, classPath string, classBytes []byte) (string, error) {
	if err := CheckMagic(classBytes); err != nil {
		return "", err
	}

	dir, file, err := stageClass(classPath, classBytes)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := expandCommand(e.command, file)
	// #nosec G204 -- the command comes from the user's own configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	// Grandchildren may hold the output pipes open after a kill.
	cmd.WaitDelay = time.Second

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	e.logger.Debug("exec decompiler finished",
		zap.String("class", classPath),
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
		}
		return "", &model.DecompileError{
			Path:   classPath,
			Output: strings.TrimSpace(stderr.String()),
			Err:    fmt.Errorf("%s: %w", args[0], err),
		}
	}
	return stdout.String(), nil
}

// stageClass writes classBytes to a new temporary directory, keeping the
// package layout of classPath, and returns the directory and the file.
func stageClass(classPath string, classBytes []byte) (dir, file string, err error) {
	dir, err = os.MkdirTemp("", "classlens-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	rel := filepath.FromSlash(strings.TrimPrefix(classPath, "/"))
	if rel == "" || strings.Contains(rel, "..") {
		rel = "Class" + model.ClassSuffix
	}
	file = filepath.Join(dir, rel)

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := os.WriteFile(file, classBytes, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to stage class file: %w", err)
	}
	return dir, file, nil
}
