// Seven Days to Calm - session stub server
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/api"
	"github.com/ashureev/seven-days-calm/internal/bridge"
	"github.com/ashureev/seven-days-calm/internal/config"
	"github.com/ashureev/seven-days-calm/internal/convai"
	"github.com/ashureev/seven-days-calm/internal/identity"
	"github.com/ashureev/seven-days-calm/internal/metrics"
	"github.com/ashureev/seven-days-calm/internal/middleware"
	"github.com/ashureev/seven-days-calm/internal/store"
	"github.com/ashureev/seven-days-calm/internal/tools"
	"github.com/ashureev/seven-days-calm/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)
	if missing := cfg.MissingEnv(); len(missing) > 0 {
		slog.Warn("Optional configuration missing", "missing_env", missing)
	}

	// Initialize dependencies.
	repo, err := store.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	eventLog, err := analytics.NewLogger(analytics.LogConfig{
		Enabled:   cfg.AnalyticsLog.Enabled,
		Dir:       cfg.AnalyticsLog.Dir,
		QueueSize: cfg.AnalyticsLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize analytics log", "error", err)
		os.Exit(1)
	}
	if closer, ok := eventLog.(io.Closer); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				slog.Error("Failed to close analytics log", "error", closeErr)
			}
		}()
	}
	sink := analytics.Multi{analytics.SlogSink{Logger: logger}, eventLog}

	signer, err := convai.NewSigner(convai.SignerConfig{
		BaseURL: cfg.SignedURL.BaseURL,
		Issuer:  cfg.SignedURL.Issuer,
		AgentID: cfg.SignedURL.AgentID,
		Secret:  []byte(cfg.SignedURL.Secret),
		TTL:     cfg.SignedURL.TTL,
	})
	if err != nil {
		slog.Error("Failed to initialize URL signer", "error", err)
		os.Exit(1)
	}
	if cfg.SignedURL.Secret == "" {
		slog.Warn("SIGNED_URL_SECRET not set, using an ephemeral signing key")
	}

	// Initialize services.
	svc := tools.NewService(repo, sink)
	sm := bridge.NewSessionManager()
	defer sm.CloseAll()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, svc, signer, cfg)
	healthHandler := api.NewHealthHandler(repo, cfg)
	wsHandler := bridge.NewWebSocketHandler(sink, sm, cfg.CORSAllowlist)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.CORSAllowlist))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", web.PageHandler().ServeHTTP)
	r.Handle("/static/*", web.StaticHandler())

	// Identity-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.DefaultUserID))
		baseHandler.RegisterRoutes(r)
		r.Get("/ws/widget", wsHandler.ServeHTTP)
	})

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket bridge connections are long lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
