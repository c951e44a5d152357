// Package server runs the workflow API with graceful shutdown.
// Workflow submissions block while the admission controller waits out
// the quota window, so the drain step is what keeps a deploy from
// killing a half-finished run.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Server wraps http.Server with signal-driven graceful shutdown.
type Server struct {
	httpServer   *http.Server
	drainTimeout time.Duration
	logger       *slog.Logger
	closers      []io.Closer // background resources to close after draining
}

// Config holds server configuration.
type Config struct {
	Addr         string // listen address, e.g. ":8080"
	Handler      http.Handler
	DrainTimeout time.Duration // max wait for in-flight workflow runs
	Logger       *slog.Logger
}

// New creates a server. A zero DrainTimeout defaults to 10s, which
// covers request teardown but not a quota wait; deployments expecting
// saturated windows should size it to the window length.
func New(cfg Config) *Server {
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr,
			Handler: cfg.Handler,
		},
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger,
	}
}

// RegisterCloser adds a resource to close during shutdown, after
// in-flight requests have drained. Used for the inbound limiter's
// garbage collector and anything else with a background goroutine.
func (s *Server) RegisterCloser(c io.Closer) {
	s.closers = append(s.closers, c)
}

// ListenAndServe starts the server and blocks until shutdown
// completes: SIGTERM or SIGINT stops the listener, in-flight requests
// get up to drainTimeout to finish, then registered resources close.
func (s *Server) ListenAndServe() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return err // listener failed to start
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	}

	s.logger.Info("draining in-flight requests", "timeout", s.drainTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("drain incomplete, forcing close", "error", err)
		s.httpServer.Close()
	}

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("error closing resource", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
