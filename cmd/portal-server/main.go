package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobboard-portal/internal/authclient"
	"jobboard-portal/internal/config"
	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/guard"
	"jobboard-portal/internal/handler"
	"jobboard-portal/internal/listener"
	"jobboard-portal/internal/messaging"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/observability"
	"jobboard-portal/internal/repository/memory"
	"jobboard-portal/internal/repository/postgres"
	"jobboard-portal/internal/session"
	"jobboard-portal/internal/websocket"
)

const credentialRetention = 30 * 24 * time.Hour

type credentialStore interface {
	domain.CredentialRepository
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting portal server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readiness []handler.ReadinessCheck

	var store credentialStore
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		db, err = config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
		connCancel()
		if err != nil {
			slog.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to postgresql")

		if err := postgres.RunMigrations(ctx, db); err != nil {
			slog.Error("failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}

		repo, err := postgres.NewCredentialRepository(db)
		if err != nil {
			slog.Error("failed to prepare credential repository", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		readiness = append(readiness, handler.DatabaseCheck(db))
		go config.ReportPoolStats(ctx, db, 15*time.Second)
	} else {
		slog.Warn("DATABASE_URL not set, credentials are kept in memory")
		store = memory.NewCredentialRepository()
		readiness = append(readiness, handler.PingCheck("credential_store", store))
	}

	bus := events.NewBus()

	client := authclient.NewClient(cfg.BackendURL, store, bus,
		authclient.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))
	readiness = append(readiness, handler.PingCheck("backend", client))

	registry := session.NewRegistry(func(clientID string) session.AuthClient {
		return client.Instance(clientID)
	}, bus)

	authListener := listener.New(bus, registry)
	if err := authListener.Start(ctx); err != nil {
		slog.Error("failed to start auth-error listener", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer authListener.Stop()

	hub := websocket.NewHub(bus)
	go func() {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	if cfg.RabbitMQURL != "" {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := messaging.NewSignalConsumer(rmq, bus).Start(ctx); err != nil {
			slog.Error("failed to start signal consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		readiness = append(readiness, handler.PingCheck("rabbitmq", rmq))
		slog.Info("signal consumer started")
	}

	routes := guard.DefaultRoutes()
	if cfg.RoutesFile != "" {
		routes, err = guard.LoadRoutes(cfg.RoutesFile)
		if err != nil {
			slog.Error("failed to load route table", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("route table loaded", slog.String("file", cfg.RoutesFile), slog.Int("routes", len(routes.All())))
	}

	backendURL, err := url.Parse(cfg.BackendURL)
	if err != nil {
		slog.Error("invalid backend url", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go registry.RunSweeper(ctx, time.Minute, cfg.ClientIdleTTL)
	go startCredentialCleanup(ctx, store)
	slog.Info("session sweepers started")

	openAPI := middleware.DefaultOpenAPIValidatorConfig()
	openAPI.Enabled = cfg.OpenAPIValidation
	openAPI.SpecPath = cfg.OpenAPISpec

	r := handler.NewRouter(handler.RouterConfig{
		Registry:       registry,
		Publisher:      bus,
		Hub:            hub,
		Routes:         routes,
		Tokens:         client,
		BackendURL:     backendURL,
		AllowedOrigins: middleware.ParseOrigins(cfg.AllowedOrigins),
		Cookies:        middleware.CookieOptions{Secure: cfg.CookieSecure},
		OpenAPI:        openAPI,
		Readiness:      readiness,
		AuthLimiter:    middleware.NewRateLimiter(ctx, 5, 10),
		APILimiter:     middleware.NewRateLimiter(ctx, 20, 50),
		Title:          "Job Board",
		AssetBase:      "/static",
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("portal server listening", slog.String("port", cfg.Port), slog.String("backend", client.BaseURL()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// startCredentialCleanup deletes persisted credentials no instance has used
// for credentialRetention.
func startCredentialCleanup(ctx context.Context, repo domain.CredentialRepository) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping credential cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := repo.DeleteStale(cleanupCtx, time.Now().Add(-credentialRetention))
			if err != nil {
				slog.Error("credential cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("credential cleanup completed", slog.Int64("credentials_deleted", count))
			}
			cleanupCancel()
		}
	}
}
