package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"golang.org/x/sync/errgroup"
)

// Serve opens the configured store and serves the API on cfg.Listen until
// ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.JWTSecret) < auth.MinSecretLen {
		return fmt.Errorf("jwt_secret must be set to at least %d bytes (env: %sJWT_SECRET)", auth.MinSecretLen, config.EnvPrefix)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	backend, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	engine := core.New(backend, auth.DocumentOwners{Backend: backend}, &core.Options{
		Retention:    cfg.Retention,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	})

	scfg := DefaultServerConfig()
	scfg.RequestsPerSecond = cfg.RequestsPerSecond
	scfg.Burst = cfg.Burst
	scfg.JWTSecret = []byte(cfg.JWTSecret)
	scfg.AdminToken = cfg.AdminToken
	scfg.Metrics = NewMetrics()
	if len(cfg.WebhookURLs) > 0 {
		scfg.Webhooks = NewWebhookNotifier(&WebhookConfig{URLs: cfg.WebhookURLs, MaxRetries: 3}, logger)
		logger.Info("webhooks configured", "count", len(cfg.WebhookURLs))
	}
	if cfg.AdminToken == "" {
		logger.Warn("admin_token not set; admin endpoints disabled")
	}

	h, cleanup := Handler(engine, scfg, logger)
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting sitedoc server",
			"listen", cfg.Listen,
			"backend", cfg.Backend,
			"data_dir", cfg.DataDir,
			"retention", cfg.Retention,
		)
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// Hijacked watch connections are not tracked by Shutdown.
		cleanup()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
