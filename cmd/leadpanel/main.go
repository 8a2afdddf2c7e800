package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sqliteadapter "github.com/nharlow/leadpanel/internal/adapter/driven/sqlite"
	"github.com/nharlow/leadpanel/internal/adapter/driven/syncapi"
	httphandler "github.com/nharlow/leadpanel/internal/adapter/driving/http"
	"github.com/nharlow/leadpanel/internal/application"
	"github.com/nharlow/leadpanel/internal/config"
	"github.com/nharlow/leadpanel/internal/domain/model"
	"github.com/nharlow/leadpanel/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"api_base_url", cfg.APIBaseURL,
		"org_id", cfg.OrgID,
		"cache_enabled", cfg.HasCacheKey(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the local settings cache and run migrations.
	var cache driven.SettingsCache
	if cfg.HasCacheKey() {
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing settings cache", "error", closeErr)
			}
		}()

		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return err
		}
		cache = sqliteadapter.NewSettingsCacheRepo(db, cfg.SecretKey)
		slog.Info("settings cache opened", "path", cfg.DBPath)
	} else {
		slog.Info("no cache key configured, local settings cache disabled")
	}

	// 4. Wire the sync client and core services.
	syncClient, err := syncapi.NewClient(cfg.APIBaseURL, cfg.APIToken)
	if err != nil {
		return err
	}

	store := application.NewCredentialStore()
	registry := application.NewAgentConfigRegistry(model.NewOrganizationDefaultConfig())
	validator := application.NewCredentialValidator(syncClient)

	settings := application.NewSettingsService(
		cfg.OrgID,
		store,
		registry,
		validator,
		syncClient,
		cache,
		slog.Default(),
	)

	// 5. Hydrate from the remote API (cache fallback inside).
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := settings.Load(loadCtx); err != nil {
		slog.Warn("initial settings load failed, starting with empty state", "error", err)
	}
	cancel()

	// 6. Create the HTTP handler and server.
	handler := httphandler.NewHandler(settings, slog.Default())
	mux := httphandler.NewServeMux(handler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("leadpanel started", "listen_addr", cfg.ListenAddr, "org_id", cfg.OrgID)

	// 7. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
