// Package api hosts the backend HTTP surface: the MFA handoff endpoints the
// bot and the operator UI talk to, and the routes that start automation runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/availity-rpa/internal/config"
	"github.com/xkilldash9x/availity-rpa/internal/mfa"
)

// Deps are the services the server routes to. Only Sessions is required.
type Deps struct {
	Sessions mfa.Store
	Runs     RunStore
	Launcher Launcher
	NPI      ProviderValidator
}

// Server hosts the handler and the MFA session sweeper.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	handler http.Handler
	sweeper *mfa.Sweeper
}

// NewServer builds the router over deps.
func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("an MFA session store is required")
	}
	logger = logger.Named("api")
	guard := mfa.OperatorGuard(cfg.MFA.OperatorSecret, logger)
	if cfg.MFA.OperatorSecret == "" {
		logger.Warn("No operator secret configured; operator routes are open.")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		mfa.NewHandlers(logger, deps.Sessions, guard).RegisterRoutes(r)
		NewHandlers(logger, deps.Runs, deps.Launcher, deps.NPI).RegisterRoutes(r, guard)
	})

	return &Server{
		cfg:     cfg.Server,
		logger:  logger,
		handler: r,
		sweeper: mfa.NewSweeper(deps.Sessions, cfg.MFA.SweepInterval, logger),
	}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln alongside the sweeper. Cancelling ctx
// shuts both down; the first failure of either stops the other.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server starting", zap.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down gracefully...")
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.logger.Info("Server stopped.")
	return err
}
