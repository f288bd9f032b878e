package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventRequestSent      EventType = "request_sent"
	EventReplyMatched     EventType = "reply_matched"
	EventRequestTimedOut  EventType = "request_timed_out"
	EventRequestCancelled EventType = "request_cancelled"
	EventSendFailed       EventType = "send_failed"
	EventPricesLoaded     EventType = "prices_loaded"
	EventPricesDefaulted  EventType = "prices_defaulted"
)

type Event struct {
	Type          EventType         `json:"type"`
	At            time.Time         `json:"at"`
	RequestType   string            `json:"request_type,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	UserID        int64             `json:"user_id,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
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
	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
			close(stop)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		case <-stop:
		}
	}()

	return ch, unsubscribe
}
