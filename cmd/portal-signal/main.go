package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"jobboard-portal/internal/config"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/messaging"
	"jobboard-portal/internal/observability"
)

// portal-signal reports an auth error for a client instance over the broker,
// the way a background worker does when the backend rejects its token.
func main() {
	clientID := flag.String("client", "", "client instance id (portal_client cookie)")
	kind := flag.String("type", string(events.KindFetchUnauthorized), "runtime_error, fetch_unauthorized or auth_error")
	status := flag.Int("status", 401, "HTTP status carried by the signal")
	source := flag.String("source", "portal-signal", "reporter of the signal")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.RabbitMQURL == "" {
		slog.Error("RABBITMQ_URL must be set")
		os.Exit(1)
	}

	k, ok := events.ParseKind(*kind)
	if !ok {
		slog.Error("unknown signal type", slog.String("type", *kind))
		os.Exit(2)
	}

	rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = messaging.NewSignalPublisher(rmq).Publish(ctx, events.Event{
		Kind:     k,
		ClientID: *clientID,
		Status:   *status,
		Source:   *source,
		At:       time.Now(),
	})
	if err != nil {
		slog.Error("failed to publish signal", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("signal published", slog.String("type", *kind), slog.String("client_id", *clientID))
}
