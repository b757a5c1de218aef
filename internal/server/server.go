// Package server exposes a browsing session over HTTP with gin.
//
// Routes:
//
//	GET  /health                          liveness and container count
//	GET  /api/containers                  loaded containers
//	POST /api/containers                  load archives (paths under ArchiveRoot, or multipart upload)
//	GET  /api/tree?filter=GLOB            namespace tree
//	GET  /api/classes/:container/*path    decompiled source of one class
//	POST /api/reset                       unload everything
//	GET  /metrics                         Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/browser"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/metrics"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr        string
	Development bool

	// ArchiveRoot limits which server-side files POST /api/containers may
	// load by path. Empty disables loading by path.
	ArchiveRoot string
}

// Server wraps the HTTP router and its dependencies.
type Server struct {
	router  *gin.Engine
	session *browser.Session
	metrics *metrics.Metrics
	logger  *zap.Logger
	addr    string
}

// New creates a server over session. Metrics may be nil, in which case
// /metrics is not registered.
func New(session *browser.Session, m *metrics.Metrics, logger *zap.Logger, opts Options) *Server {
	logger = logging.OrNop(logger).Named("server")

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		router:  router,
		session: session,
		metrics: m,
		logger:  logger,
		addr:    opts.Addr,
	}

	h := &handlers{session: session, logger: logger, archiveRoot: opts.ArchiveRoot}
	router.GET("/health", h.health)

	api := router.Group("/api")
	api.GET("/containers", h.listContainers)
	api.POST("/containers", h.loadContainers)
	api.GET("/tree", h.tree)
	api.GET("/classes/:container/*path", h.class)
	api.POST("/reset", h.reset)

	if m != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// listener is bound before serving starts, so an address already in use
// fails immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
