package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/schererja/drovah/internal/artifacts"
	"github.com/schererja/drovah/internal/build"
	"github.com/schererja/drovah/internal/db"
	"github.com/schererja/drovah/pkg/logger"
)

// Options configures the HTTP server
type Options struct {
	Address       string
	Secret        []byte
	AllowedOrigin string
	// PullBeforeBuild runs git pull before webhook-triggered builds
	PullBeforeBuild bool
}

// Server exposes the webhook, badges, build history and archived artifacts
type Server struct {
	opts       Options
	orch       *build.Orchestrator
	store      db.Store
	archive    *artifacts.Manager
	logger     *logger.Logger
	httpServer *http.Server
}

// NewServer creates a new daemon server
func NewServer(opts Options, orch *build.Orchestrator, store db.Store, archive *artifacts.Manager, logger *logger.Logger) *Server {
	s := &Server{
		opts:    opts,
		orch:    orch,
		store:   store,
		archive: archive,
		logger:  logger,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with CORS and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/v1/projects", s.handleProjects)
	mux.HandleFunc("GET /api/v1/active", s.handleActive)
	mux.HandleFunc("GET /api/v1/{project}/badge", s.handleLatestBadge)
	mux.HandleFunc("GET /api/v1/{project}/latest", s.handleLatestFile)
	mux.HandleFunc("GET /api/v1/{project}/{build}/badge", s.handleBuildBadge)
	mux.HandleFunc("GET /api/v1/{project}/{build}/{file}", s.handleFile)

	return s.logRequests(cors(s.opts.AllowedOrigin, mux))
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("drovah listening", slog.String("address", lis.Addr().String()))
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server, then waits for running builds
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("builds still running at shutdown", slog.Int("active", len(s.orch.Active())))
	}
	return err
}
