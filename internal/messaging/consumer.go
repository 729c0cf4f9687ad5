package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"jobboard-portal/internal/events"
)

const relayTimeout = 5 * time.Second

// SignalConsumer relays auth-error signals from the broker onto the
// in-process bus, where the global listener handles them.
type SignalConsumer struct {
	rmq       *RabbitMQ
	publisher events.Publisher
}

func NewSignalConsumer(rmq *RabbitMQ, publisher events.Publisher) *SignalConsumer {
	return &SignalConsumer{
		rmq:       rmq,
		publisher: publisher,
	}
}

func (c *SignalConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,
		signalRoutingKey+"*",
		SignalsExchange,
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		false,      // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return err
	}

	slog.Info("started consuming auth signals",
		slog.String("queue", queue.Name),
		slog.String("exchange", SignalsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping signal consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("signal consumer channel closed")
					return
				}
				c.handle(ctx, msg)
			}
		}
	}()

	return nil
}

// handle acks relayed and malformed signals; a failed relay is requeued.
func (c *SignalConsumer) handle(ctx context.Context, d amqp.Delivery) {
	e, err := DecodeSignal(d.Body)
	if err != nil {
		slog.Warn("dropping malformed signal",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(d.Body)))
		_ = d.Reject(false)
		return
	}

	relayCtx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	if err := c.publisher.Publish(relayCtx, e); err != nil {
		requeue := !errors.Is(err, context.Canceled)
		slog.Error("failed to relay signal",
			slog.String("error", err.Error()),
			slog.String("client_id", e.ClientID),
			slog.Bool("requeue", requeue))
		_ = d.Nack(false, requeue)
		return
	}

	slog.Debug("relayed auth signal",
		slog.String("type", string(e.Kind)),
		slog.String("client_id", e.ClientID))
	_ = d.Ack(false)
}
