package bus

import "time"

// InboundMessage is one raw payload delivered by the host bridge. Data is not
// guaranteed to be JSON; the stream also carries unrelated traffic.
type InboundMessage struct {
	Source     string    `json:"source"`
	Data       string    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is one serialized envelope queued for a transport.
type OutboundMessage struct {
	Transport string `json:"transport,omitempty"`
	Data      []byte `json:"data"`
}
