package loopback

import (
	"context"
	"errors"
	"log/slog"

	"premiumshop/pkg/bus"
	"premiumshop/pkg/channel"
)

const transportName = "loopback"

// ErrNotDelivered is returned when the outbound queue refuses an envelope.
var ErrNotDelivered = errors.New("loopback: outbound queue closed")

// Responder answers one outbound envelope. Returning false sends no reply.
type Responder func(data []byte) (reply string, ok bool)

// Transport keeps envelopes in process: Send queues them on the bus and Run
// drains the queue through an optional responder.
type Transport struct {
	bus       *bus.MessageBus
	responder Responder
	log       *slog.Logger
}

func NewTransport(messageBus *bus.MessageBus, responder Responder, log *slog.Logger) (*Transport, error) {
	if messageBus == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		bus:       messageBus,
		responder: responder,
		log:       log.With("component", "channel.loopback"),
	}, nil
}

func (t *Transport) Name() string {
	return transportName
}

func (t *Transport) Send(ctx context.Context, data []byte) error {
	msg := bus.OutboundMessage{Transport: transportName, Data: append([]byte(nil), data...)}
	if !t.bus.PublishOutbound(ctx, msg) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrNotDelivered
	}
	return nil
}

// Run consumes queued envelopes until ctx ends. Without a responder the
// envelopes are only logged.
func (t *Transport) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	for {
		msg, ok := t.bus.ConsumeOutbound(ctx)
		if !ok {
			return nil
		}

		t.log.Debug("Envelope queued", "bytes", len(msg.Data))
		if t.responder == nil {
			continue
		}

		reply, ok := t.responder(msg.Data)
		if !ok {
			continue
		}
		if !sink(ctx, bus.InboundMessage{Source: transportName, Data: reply}) {
			t.log.Warn("Inbound stream rejected reply")
		}
	}
}
