package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"gatehouse/internal/auth"
	"gatehouse/internal/config"
	transporthttp "gatehouse/internal/http"
	"gatehouse/internal/platform/database"
	"gatehouse/internal/platform/logging"
	"gatehouse/internal/platform/migrate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	users, attempts, cleanup, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	adapters, err := buildAdapters(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize oauth providers", "error", err)
		os.Exit(1)
	}

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		// Development only; config validation rejects this elsewhere.
		sessionSecret, err = auth.NewState()
		if err != nil {
			logger.Error("failed to generate session secret", "error", err)
			os.Exit(1)
		}
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	hasher := auth.NewBcryptHasher(auth.DefaultBcryptCost)
	if cfg.UseInMemoryStore() {
		if err := seedDemoAccount(ctx, users, hasher, logger); err != nil {
			logger.Error("failed to seed demo account", "error", err)
			os.Exit(1)
		}
	}

	resolver := auth.NewResolver(users, logger)
	flow := auth.NewFlow(attempts, resolver, logger, auth.FlowConfig{
		AttemptTTL:  cfg.AttemptTTL,
		HTTPTimeout: cfg.HTTPTimeout,
	}, adapters...)
	go flow.RunSweeper(ctx, cfg.SweepInterval)

	router := transporthttp.NewRouter(cfg, transporthttp.Services{
		Flow:     flow,
		Accounts: auth.NewAccounts(users, hasher),
		Sessions: auth.NewSessionIssuer(sessionSecret, cfg.SessionTTL),
		Users:    users,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("gatehouse API listening", "addr", srv.Addr, "store", cfg.DataStore, "providers", len(adapters))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.UserRepository, auth.AttemptStore, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repository")
		return auth.NewInMemoryUserRepository(), auth.NewInMemoryAttemptStore(nil), nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	logger.Info("connected to postgres")
	return auth.NewPostgresUserRepository(db), auth.NewPostgresAttemptStore(db), cleanup, nil
}

func buildAdapters(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]auth.ProviderAdapter, error) {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	var adapters []auth.ProviderAdapter

	if google := cfg.Google(); google.Enabled() {
		opts := []auth.AdapterOption{auth.WithHTTPClient(client)}
		if cfg.GoogleVerifyIDToken {
			verifier, err := auth.NewGoogleIDTokenVerifier(ctx, google.ClientID)
			if err != nil {
				return nil, err
			}
			opts = append(opts, auth.WithIDTokenVerifier(verifier))
		}
		adapters = append(adapters, auth.NewGoogleProvider(google, opts...))
		logger.Info("oauth provider enabled", "provider", auth.ProviderGoogle)
	}

	if facebook := cfg.Facebook(); facebook.Enabled() {
		adapters = append(adapters, auth.NewFacebookProvider(facebook, auth.WithHTTPClient(client)))
		logger.Info("oauth provider enabled", "provider", auth.ProviderFacebook)
	}

	if len(adapters) == 0 {
		logger.Warn("no oauth providers configured; only password login is available")
	}
	return adapters, nil
}
