// VisoLearn Local Interface Server
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

	"github.com/compumacy/visolearn-local/internal/api"
	"github.com/compumacy/visolearn-local/internal/artifacts"
	"github.com/compumacy/visolearn-local/internal/config"
	"github.com/compumacy/visolearn-local/internal/middleware"
	"github.com/compumacy/visolearn-local/internal/remote"
	"github.com/compumacy/visolearn-local/internal/session"
	"github.com/compumacy/visolearn-local/internal/store"
	"github.com/compumacy/visolearn-local/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "space", cfg.RemoteSpace, "fallback", cfg.StartInFallback)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	writer := artifacts.NewWriter(cfg.DataDir)

	remoteCfg := remote.DefaultConfig()
	remoteCfg.HubURL = cfg.RemoteHubURL
	remoteCfg.AppURL = cfg.RemoteAppURL
	remoteCfg.Space = cfg.RemoteSpace
	remoteCfg.DisableQueue = cfg.DisableQueue

	dial := func(ctx context.Context, token string) (session.Connector, error) {
		return remote.Dial(ctx, token, remoteCfg, logger)
	}
	svc := session.New(dial, repo, writer, logger)

	// Attempt the initial remote connection. Failure is not fatal: the app
	// starts degraded and the user can connect (or enable fallback) from
	// the UI.
	switch {
	case cfg.StartInFallback:
		svc.SetFallback(true)
		slog.Info("Fallback mode enabled by configuration")
	case cfg.Token != "":
		connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := svc.Connect(connectCtx, cfg.Token); err != nil {
			if errors.Is(err, remote.ErrAuth) {
				slog.Error("Credential rejected; fix VISOLEARN_TOKEN or enter a token in the UI", "error", err)
			} else {
				slog.Warn("Remote service unavailable at startup, starting degraded", "error", err)
			}
		}
		cancel()
	default:
		slog.Info("No credential configured; enter a token in the UI or set VISOLEARN_TOKEN")
	}

	// Initialize handlers.
	handler := api.NewHandler(svc, repo)
	statusHandler := api.NewStatusHandler(svc)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)

	// WebSocket status stream.
	r.Get("/ws/status", statusHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Image generation calls can hold a response open for minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartRetentionWorker(ctx, repo, cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
