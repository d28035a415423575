// Command chase-server drives a brokerage browser session and exposes it as
// a local JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chaseinvest/internal/chase"
	"chaseinvest/internal/config"
	"chaseinvest/internal/database"
	"chaseinvest/internal/handlers"
	"chaseinvest/internal/middleware"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
	"chaseinvest/internal/util"
	"chaseinvest/internal/vault"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHASE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return err
	}
	logger.Info("database migrations completed", "path", cfg.Storage.SQLitePath)

	accountRepo := repository.NewAccountRepository(db)
	holdingRepo := repository.NewHoldingRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	syncHistoryRepo := repository.NewSyncHistoryRepository(db)

	enc, err := vault.NewEncryptor(cfg.Storage.EncryptionSecret)
	if err != nil {
		return err
	}
	creds := vault.New(enc, repository.NewCredentialRepository(db))
	audit := services.NewAuditService(db, logger)

	retention := services.NewRetentionService(cfg.Retention(), map[string]services.Pruner{
		"holding_snapshots": holdingRepo,
		"quotes":            quoteRepo,
		"sync_history":      syncHistoryRepo,
		"audit_log":         audit,
	}, logger)
	go retention.Run(ctx, 24*time.Hour)

	client, err := chase.OpenClient(ctx, cfg.BrowserOptions(), cfg.Orders.AcceptWarnings, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	syncService := sync.NewService(client, accountRepo, holdingRepo, syncHistoryRepo, logger)

	fixed := vault.Credentials{
		Username: cfg.Credentials.Username,
		Password: cfg.Credentials.Password,
		LastFour: cfg.Credentials.LastFour,
	}
	deps := handlers.NewDependencies(client).
		WithLogger(logger).
		WithCredentials(creds.Source(cfg.VaultProfile(), fixed)).
		WithSyncService(syncService).
		WithAudit(audit).
		WithRepositories(accountRepo, holdingRepo, quoteRepo, orderRepo, syncHistoryRepo).
		WithCodeLink(cfg.Server.PublicURL, cfg.Address(), cfg.Server.APIToken).
		WithAfterHours(cfg.Orders.AfterHours)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst)
	go limiter.Cleanup(ctx, time.Minute)
	strict := middleware.NewStrictLimiter()
	go strict.Cleanup(ctx, time.Minute)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           handlers.New(deps).Routes(limiter, strict),
		ReadHeaderTimeout: 10 * time.Second,
		// Login and order flows hold the request for minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", "http://"+cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
