package bus

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 100

// MessageBus is the in-process stand-in for the host bridge's broadcast
// receive stream. Every inbound message is delivered to every live subscriber.
type MessageBus struct {
	outbound chan OutboundMessage

	inboundSubscribers      map[uint64]*inboundSubscriber
	nextInboundSubscriberID uint64

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		outbound:           make(chan OutboundMessage, defaultBufferSize),
		inboundSubscribers: make(map[uint64]*inboundSubscriber),
		eventSubscribers:   make(map[uint64]chan Event),
		done:               make(chan struct{}),
	}
}

// inboundSubscriber queues accepted messages without bound and pumps them
// into out, so neither the publisher blocks nor a message is lost.
type inboundSubscriber struct {
	accept func(InboundMessage) bool

	mu       sync.Mutex
	pending  []InboundMessage
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	out      chan InboundMessage
}

func newInboundSubscriber(buffer int, accept func(InboundMessage) bool) *inboundSubscriber {
	sub := &inboundSubscriber{
		accept: accept,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		out:    make(chan InboundMessage, buffer),
	}
	go sub.pump()
	return sub
}

func (s *inboundSubscriber) push(msg InboundMessage) {
	if s.accept != nil && !s.accept(msg) {
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *inboundSubscriber) pop() (InboundMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return InboundMessage{}, false
	}
	msg := s.pending[0]
	s.pending[0] = InboundMessage{}
	s.pending = s.pending[1:]
	return msg, true
}

func (s *inboundSubscriber) close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *inboundSubscriber) pump() {
	defer close(s.out)
	for {
		msg, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		select {
		case s.out <- msg:
		case <-s.stop:
			return
		}
	}
}

// PublishInbound fans msg out to all inbound subscribers. It never blocks on
// a slow subscriber; the message waits in that subscriber's queue.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()
	for _, sub := range mb.inboundSubscribers {
		sub.push(msg)
	}

	return true
}

// SubscribeInbound registers a listener on the inbound stream. The returned
// function removes it and is safe to call more than once.
func (mb *MessageBus) SubscribeInbound(ctx context.Context, buffer int) (<-chan InboundMessage, func()) {
	return mb.SubscribeInboundMatching(ctx, buffer, nil)
}

// SubscribeInboundMatching is SubscribeInbound restricted to messages accept
// reports true for. accept runs on the publisher's goroutine and must not
// block; a nil accept takes every message.
func (mb *MessageBus) SubscribeInboundMatching(ctx context.Context, buffer int, accept func(InboundMessage) bool) (<-chan InboundMessage, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		ch := make(chan InboundMessage)
		close(ch)
		return ch, func() {}
	default:
	}

	sub := newInboundSubscriber(buffer, accept)
	id := mb.nextInboundSubscriberID
	mb.nextInboundSubscriberID++
	mb.inboundSubscribers[id] = sub
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			delete(mb.inboundSubscribers, id)
			mb.mu.Unlock()
			sub.close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		case <-sub.stop:
		}
	}()

	return sub.out, unsubscribe
}

// InboundSubscribers reports how many inbound listeners are registered.
func (mb *MessageBus) InboundSubscribers() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.inboundSubscribers)
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.outbound <- msg:
		return true
	}
}

func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, sub := range mb.inboundSubscribers {
			sub.close()
			delete(mb.inboundSubscribers, id)
		}
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
