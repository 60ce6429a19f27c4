// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/api"
	"github.com/xkilldash9x/availity-rpa/internal/config"
	"github.com/xkilldash9x/availity-rpa/internal/launcher"
	"github.com/xkilldash9x/availity-rpa/internal/mfa"
	"github.com/xkilldash9x/availity-rpa/internal/npi"
	"github.com/xkilldash9x/availity-rpa/internal/observability"
	"github.com/xkilldash9x/availity-rpa/internal/store"
)

// storeProvider defines an interface for creating a database store.
// This abstraction allows for mocking the store in tests.
type storeProvider interface {
	Create(ctx context.Context, cfg *config.Config) (*store.Store, func(), error)
}

// defaultStoreProvider connects to PostgreSQL through a pgx pool.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the database and returns a store along with a cleanup
// function that closes the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (*store.Store, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (AVAILITY_RPA_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

func newServeCmd(provider storeProvider) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the backend: MFA handoff, run triggers and NPI lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.Server.ListenAddr = addr
			}
			return runServe(ctx, cfg, provider, observability.GetLogger())
		},
	}
	serveCmd.Flags().String("listen", "", "listen address (overrides server.listen_addr)")
	return serveCmd
}

func runServe(ctx context.Context, cfg *config.Config, provider storeProvider, logger *zap.Logger) error {
	sessions, closeSessions, err := newSessionStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	deps := api.Deps{Sessions: sessions}

	db, closeDB, err := provider.Create(ctx, cfg)
	if err != nil {
		// The MFA handoff is still useful without a database.
		logger.Warn("Database unavailable; run triggers and NPI lookup are disabled.", zap.Error(err))
	} else {
		defer closeDB()
		runner, err := launcher.New(cfg.Server.Executable, cfg.Server.RunTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to prepare launcher: %w", err)
		}
		deps.Runs = db
		deps.Launcher = runner
		deps.NPI = npi.NewService(&sessionLookup{cfg: cfg, logger: logger}, db, logger)
	}

	srv, err := api.NewServer(cfg, logger, deps)
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSessionStore picks the MFA session backend named in the config.
func newSessionStore(cfg *config.Config, logger *zap.Logger) (mfa.Store, func(), error) {
	switch cfg.MFA.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.MFA.RedisAddr, DB: cfg.MFA.RedisDB})
		logger.Info("Using redis MFA session store", zap.String("addr", cfg.MFA.RedisAddr))
		return mfa.NewRedisStore(client, cfg.MFA.TTL), func() { _ = client.Close() }, nil
	case "memory", "":
		return mfa.NewMemoryStore(cfg.MFA.TTL), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown mfa backend %q", cfg.MFA.Backend)
	}
}

// sessionLookup opens a fresh browser tab for every registry search.
type sessionLookup struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (l *sessionLookup) Lookup(ctx context.Context, q npi.Query) (npi.Provider, error) {
	pg, closePage, err := openPage(ctx, l.cfg, l.logger)
	if err != nil {
		return npi.Provider{}, fmt.Errorf("failed to open browser: %w", err)
	}
	defer func() {
		if err := closePage(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("Failed to close lookup browser", zap.Error(err))
		}
	}()
	return npi.NewBrowserLookup(pg, l.cfg.Portal.NPIRegistryURL, l.logger).Lookup(ctx, q)
}
