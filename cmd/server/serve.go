package main

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

	"github.com/ashureev/studydeck/internal/api"
	"github.com/ashureev/studydeck/internal/auth"
	"github.com/ashureev/studydeck/internal/completion"
	"github.com/ashureev/studydeck/internal/config"
	"github.com/ashureev/studydeck/internal/middleware"
	"github.com/ashureev/studydeck/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DB.Driver)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(repo)

	authSvc, err := auth.New(auth.NewOptions(cfg), repo, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	ai, err := completion.New(cfg.DeepSeek)
	if err != nil {
		return fmt.Errorf("failed to initialize completion client: %w", err)
	}
	slog.Info("Completion client initialized", "model", ai.Model())

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, repo, authSvc, ai, limiter),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // completions can be slow
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return authSvc.RunSessionSweeper(gctx, auth.DefaultSweepInterval)
	})
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

func newRouter(cfg *config.Config, repo *store.SQLStore, authSvc *auth.Service, ai api.Generator, limiter *api.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	// Forwarded headers are client-controlled unless a proxy overwrites them,
	// and the anonymous AI rate limit keys on the resulting address.
	if cfg.TrustProxy {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(authSvc.Options().TrustedOrigins))
	r.Use(authSvc.Middleware())

	api.NewHealthHandler(repo, cfg.DB.Driver).RegisterHealth(r)
	api.NewAuthHandler(authSvc, slog.Default()).RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(authSvc.RequireTrustedOrigin())
		api.NewAIHandler(ai, limiter, slog.Default()).RegisterRoutes(r)
	})

	return r
}
