// Package decompiler provides the capability that turns class-file bytes
// into readable source text, and the backends implementing it.
//
// Three backends exist:
//
//   - outline: a pure-Go class-file reader that prints a declaration
//     skeleton (no method bodies). It is the default and needs no tools.
//   - exec: runs an external decompiler command (for example
//     "java -jar cfr.jar {}") against a temporary copy of the class.
//   - docker: runs the same kind of command inside a container image via
//     the Docker Engine API, so no JVM has to be installed locally.
//
// Every backend rejects input that does not start with the class-file
// magic number before doing any work. Backends are pure functions of their
// input bytes from the caller's point of view; memoization lives in the
// decompcache package.
package decompiler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/docker"
	"github.com/shinji-kodama/classlens/internal/logging"
)

// Backend names accepted by New.
const (
	BackendOutline = "outline"
	BackendExec    = "exec"
	BackendDocker  = "docker"
)

// Placeholder is replaced by the class file path in external commands.
// When a command has no placeholder the path is appended.
const Placeholder = "{}"

// Decompiler converts the bytes of one class file to source text.
//
// classPath is the archive path of the class ("com/acme/Foo.class"); some
// external tools need it to lay the file out under its package directory.
// Implementations must be safe for concurrent use.
type Decompiler interface {
	Decompile(ctx context.Context, classPath string, classBytes []byte) (string, error)
}

// Func adapts a plain function to the Decompiler interface.
type Func func(ctx context.Context, classPath string, classBytes []byte) (string, error)

// Decompile calls f.
func (f Func) Decompile(ctx context.Context, classPath string, classBytes []byte) (string, error) {
	return f(ctx, classPath, classBytes)
}

// Options selects and configures a backend.
type Options struct {
	// Backend is one of BackendOutline, BackendExec or BackendDocker.
	// Empty selects the outline backend.
	Backend string

	// Command is the external command for the exec and docker backends.
	Command []string

	// Image is the container image for the docker backend.
	Image string

	// Timeout bounds one external invocation. Zero means no limit.
	Timeout time.Duration
}

// New creates the backend named in opts. The docker backend connects to
// the daemon here and fails with a model.CLIError (ExitDockerNotRunning)
// when it is unreachable. Callers should Close the result when done.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Decompiler, error) {
	logger = logging.OrNop(logger).Named("decompiler")

	switch strings.ToLower(opts.Backend) {
	case "", BackendOutline:
		return NewOutline(), nil

	case BackendExec:
		return NewExec(opts.Command, opts.Timeout, logger)

	case BackendDocker:
		cli, err := docker.NewClient()
		if err != nil {
			return nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			cli.Close()
			return nil, err
		}
		d, err := NewDocker(cli, opts.Image, opts.Command, opts.Timeout, logger)
		if err != nil {
			cli.Close()
			return nil, err
		}
		if err := d.Prepare(ctx); err != nil {
			d.Close()
			return nil, err
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown decompiler backend %q (want %s, %s or %s)",
			opts.Backend, BackendOutline, BackendExec, BackendDocker)
	}
}

// Close releases resources held by d if it has any.
func Close(d Decompiler) error {
	if c, ok := d.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// expandCommand substitutes the placeholder in args with classFile, or
// appends classFile when no argument contains the placeholder.
func expandCommand(args []string, classFile string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, a := range args {
		if strings.Contains(a, Placeholder) {
			a = strings.ReplaceAll(a, Placeholder, classFile)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, classFile)
	}
	return out
}
