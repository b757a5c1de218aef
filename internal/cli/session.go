package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/browser"
	"github.com/shinji-kodama/classlens/internal/config"
	"github.com/shinji-kodama/classlens/internal/decompiler"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/metrics"
	"github.com/shinji-kodama/classlens/internal/model"
)

// env bundles what every subcommand needs: the resolved configuration, a
// logger and a session with the command-line archives loaded.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	session *browser.Session
}

// envOptions tweaks newEnv for a subcommand.
type envOptions struct {
	// withMetrics creates a metrics registry for the session.
	withMetrics bool

	// allowEmpty accepts a run in which no archive could be loaded.
	allowEmpty bool

	// override is applied to the configuration after it is loaded, so
	// command flags take precedence over file and environment.
	override func(*config.Config)
}

// newEnv loads the configuration, creates the decompiler backend and the
// session, and loads paths into it. Archives that fail to load are
// reported on stderr; the command fails only when none could be loaded.
func newEnv(ctx context.Context, stderr io.Writer, paths []string, opts envOptions) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if opts.override != nil {
		opts.override(cfg)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	VerboseLog("Decompiler backend: %s", cfg.Decompiler.Backend)

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "failed to create logger", err)
	}

	var m *metrics.Metrics
	if opts.withMetrics {
		m = metrics.New().WithProcessCollectors()
	}

	d, err := decompiler.New(ctx, cfg.DecompilerOptions(), logger)
	if err != nil {
		_ = logger.Sync()
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			return nil, err
		}
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "failed to create decompiler", err)
	}

	session, err := browser.New(browser.Options{
		Capacity:   cfg.MaxContainers,
		Decompiler: d,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		_ = decompiler.Close(d)
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "failed to create session", err)
	}

	e := &env{cfg: cfg, logger: logger, metrics: m, session: session}

	if len(paths) > 0 {
		report := session.OnContainersLoaded(ctx, paths)
		for _, name := range report.Loaded {
			VerboseLog("Loaded %s", name)
		}
		for _, name := range report.Evicted {
			VerboseLog("Evicted %s (more than %d archives)", name, cfg.MaxContainers)
		}
		for _, f := range report.Failures {
			fmt.Fprintf(stderr, "Warning: skipping %s: %v\n", f.Source, f.Err)
		}
		if len(report.Loaded) == 0 && !opts.allowEmpty {
			e.Close()
			return nil, report.Err()
		}
	}

	return e, nil
}

// Close releases the decompiler backend and flushes the logger.
func (e *env) Close() {
	if err := e.session.Close(); err != nil {
		e.logger.Warn("failed to close decompiler", zap.Error(err))
	}
	_ = e.logger.Sync()
}
