package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/config"
	"github.com/shinji-kodama/classlens/internal/server"
)

type serveFlags struct {
	addr        string // --addr: listen address, overrides the config
	archiveRoot string // --archive-root: directory clients may load archives from by path
}

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve [jar]...",
		Short: "Serve the browser over HTTP",
		Long: `Start an HTTP API over a browsing session. Archives given on the command
line are loaded before the server starts; more can be uploaded with
POST /api/containers.

Clients can also ask the server to open archives by path, but only below
--archive-root (server.archiveRoot in the config file). Without it, loading
by path is refused, so a client cannot read arbitrary server files.

Prometheus metrics are exposed on /metrics. The server stops gracefully on
SIGINT or SIGTERM.

Examples:
  classlens serve app.jar
  classlens serve --addr 127.0.0.1:9000 app.jar lib.jar
  classlens serve --archive-root /srv/jars`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "Listen address (default: from config, :8080)")
	cmd.Flags().StringVar(&flags.archiveRoot, "archive-root", "", "Directory clients may load archives from by path (default: disabled)")

	return cmd
}

func runServe(cmd *cobra.Command, paths []string, flags *serveFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, cmd.ErrOrStderr(), paths, envOptions{
		withMetrics: true,
		allowEmpty:  true,
		override: func(cfg *config.Config) {
			if flags.addr != "" {
				cfg.Server.Addr = flags.addr
			}
			if flags.archiveRoot != "" {
				cfg.Server.ArchiveRoot = flags.archiveRoot
			}
		},
	})
	if err != nil {
		return err
	}
	defer e.Close()

	srv := server.New(e.session, e.metrics, e.logger, server.Options{
		Addr:        e.cfg.Server.Addr,
		Development: e.cfg.Log.Development,
		ArchiveRoot: e.cfg.Server.ArchiveRoot,
	})
	VerboseLog("Listening on %s", e.cfg.Server.Addr)

	if err := srv.Run(ctx); err != nil {
		e.logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}
