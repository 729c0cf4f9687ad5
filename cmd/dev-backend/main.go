package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jobboard-portal/internal/config"
	"jobboard-portal/internal/devbackend"
	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/observability"
)

const demoPassword = "demo1234"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.IsProduction() {
		slog.Error("the development backend refuses to run in production")
		os.Exit(1)
	}

	slog.Info("starting development backend")

	svc := devbackend.NewService(cfg.DevBackendSecret)
	seedDemoUsers(svc)

	srv := &http.Server{
		Addr:         ":" + cfg.DevBackendPort,
		Handler:      devbackend.NewServer(svc).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("development backend listening", slog.String("port", cfg.DevBackendPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down development backend")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}
}

// seedDemoUsers creates one approved, verified account per user type.
func seedDemoUsers(svc *devbackend.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, t := range []domain.UserType{domain.Candidat, domain.Recruteur, domain.Prestataire} {
		name := "demo_" + strings.ToLower(t.String())
		user, err := svc.CreateUser(ctx, domain.Registration{
			Username:      name,
			Email:         name + "@example.com",
			Password:      demoPassword,
			Password2:     demoPassword,
			UserType:      t,
			TermsAccepted: true,
		}, true, true)
		if err != nil {
			slog.Error("failed to seed demo user", slog.String("username", name), slog.String("error", err.Error()))
			continue
		}
		slog.Info("seeded demo user",
			slog.String("username", user.Username),
			slog.String("user_type", t.String()),
			slog.String("password", demoPassword))
	}
}
