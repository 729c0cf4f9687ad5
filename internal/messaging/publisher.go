package messaging

import (
	"context"

	"jobboard-portal/internal/events"
)

// SignalPublisher lets processes outside the portal, such as background
// workers calling the backend for an instance, report auth errors.
type SignalPublisher struct {
	rmq *RabbitMQ
}

func NewSignalPublisher(rmq *RabbitMQ) *SignalPublisher {
	return &SignalPublisher{rmq: rmq}
}

// Publish implements events.Publisher over the signals exchange.
func (p *SignalPublisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := EncodeSignal(e)
	if err != nil {
		return err
	}
	return p.rmq.PublishSignal(ctx, msg)
}
