package channel

import (
	"context"

	"premiumshop/pkg/bus"
)

// Sink accepts one raw inbound payload read by a transport.
type Sink func(context.Context, bus.InboundMessage) bool

// Transport is one concrete host bridge: a one-way send plus a receive loop
// that feeds the shared inbound stream.
type Transport interface {
	Name() string
	Send(ctx context.Context, data []byte) error
	Run(ctx context.Context, sink Sink) error
}
