// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/stem-ed-architects/backend/internal/config"
	"github.com/stem-ed-architects/backend/internal/database"
	"github.com/stem-ed-architects/backend/internal/handlers"
	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/secretbox"
	"github.com/stem-ed-architects/backend/internal/services/auth"
	"github.com/stem-ed-architects/backend/internal/services/email"
	"github.com/stem-ed-architects/backend/internal/services/lockout"
	"github.com/stem-ed-architects/backend/internal/services/ratelimit"
	"github.com/stem-ed-architects/backend/internal/services/refresh"
	"github.com/stem-ed-architects/backend/internal/services/token"
	"github.com/stem-ed-architects/backend/internal/services/twofactor"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// Migrations
	if migrateErr := database.RunMigrations(db.DB); migrateErr != nil {
		return fmt.Errorf("failed to migrate database: %w", migrateErr)
	}

	repo := repository.New(db)

	// Services
	codec, err := token.NewCodec(cfg.Auth.SecretKey, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to build token codec: %w", err)
	}
	box, err := secretbox.New(cfg.Auth.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to build secret box: %w", err)
	}

	mailer := email.NewService(&cfg.SMTP, cfg.Server.BaseURL)
	refreshSvc := refresh.NewService(repo, cfg.Auth.RefreshTokenTTL)
	guard := lockout.NewGuard(repo, mailer)
	engine := twofactor.NewEngine(repo, box, cfg.Auth.TwoFactorIssuer)

	limiter, err := buildLimiter(ctx, cfg)
	if err != nil {
		return err
	}

	authSvc := auth.NewService(repo, codec, refreshSvc, guard, engine, limiter, mailer, cfg)

	session, err := handlers.NewSessionCookie(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to build session cookie codec: %w", err)
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)

	h := handlers.New(repo, authSvc, engine, session)
	h.Register(e)

	return startWithGracefulShutdown(e, cfg)
}

// buildLimiter selects the rate-limit strategy: redis when a URL is
// configured, the in-process window otherwise.
func buildLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, error) {
	if cfg.RateLimit.RedisURL == "" {
		slog.Info("rate limiter using in-process window")
		return ratelimit.NewMemoryLimiter(), nil
	}

	opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	slog.Info("rate limiter using redis", "url", cfg.RateLimit.RedisURL)
	return ratelimit.NewRedisLimiter(client), nil
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
