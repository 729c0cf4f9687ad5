package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"jobboard-portal/internal/events"
)

const (
	SignalsExchange  = "portal.signals"
	signalRoutingKey = "signal."
)

var ErrInvalidSignal = errors.New("invalid signal")

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// SignalMessage is the wire form of an auth-error signal reported by a
// background worker on behalf of a client instance.
type SignalMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Status    int    `json:"status,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		SignalsExchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare signals exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishSignal sends msg to the signals exchange, routed by its type.
func (r *RabbitMQ) PublishSignal(ctx context.Context, msg *SignalMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		SignalsExchange,
		signalRoutingKey+msg.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Unix(msg.Timestamp, 0),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	slog.Debug("published auth signal",
		slog.String("type", msg.Type),
		slog.String("client_id", msg.ClientID))
	return nil
}

// Ping reports whether the broker connection is usable.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return ctx.Err()
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EncodeSignal converts a bus event into its wire form. Only the three
// auth-error kinds travel over the broker.
func EncodeSignal(e events.Event) (*SignalMessage, error) {
	if !isWireKind(e.Kind) {
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidSignal, e.Kind)
	}
	if e.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrInvalidSignal)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return &SignalMessage{
		Type:      string(e.Kind),
		ClientID:  e.ClientID,
		Status:    e.Status,
		Source:    e.Source,
		Timestamp: at.Unix(),
	}, nil
}

// DecodeSignal parses a delivery body into a bus event.
func DecodeSignal(body []byte) (events.Event, error) {
	var msg SignalMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return events.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	kind, ok := events.ParseKind(msg.Type)
	if !ok || !isWireKind(kind) {
		return events.Event{}, fmt.Errorf("%w: kind %q", ErrInvalidSignal, msg.Type)
	}
	if msg.ClientID == "" {
		return events.Event{}, fmt.Errorf("%w: missing client id", ErrInvalidSignal)
	}

	e := events.Event{
		Kind:     kind,
		ClientID: msg.ClientID,
		Status:   msg.Status,
		Source:   msg.Source,
		At:       time.Now(),
	}
	if msg.Timestamp > 0 {
		e.At = time.Unix(msg.Timestamp, 0)
	}
	return e, nil
}

func isWireKind(k events.Kind) bool {
	return k == events.KindRuntimeError || k == events.KindFetchUnauthorized || k == events.KindAuthError
}
