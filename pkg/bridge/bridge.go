package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"premiumshop/pkg/bus"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds how long RequestUserData waits for a reply.
	DefaultTimeout = 10 * time.Second

	RequestGetUserData        = "get_user_data"
	RequestPaymentScreenshot  = "payment_screenshot"
	RequestCheckCryptoPayment = "check_crypto_payment"
	RequestPayment            = "payment"
	RequestCheckPayment       = "check_payment"

	correlationPrefix = "user_data_"
	inboundBuffer     = 16
)

// Sender is the host transport's one-way send primitive.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// Session exposes the authenticated Mini-App user.
type Session interface {
	UserID() (int64, bool)
}

// Reply is the inbound envelope that satisfied a pending request.
type Reply struct {
	CorrelationID string
	Raw           json.RawMessage
	ReceivedAt    time.Time
}

// Decode unmarshals the reply body into v.
func (r Reply) Decode(v any) error {
	if len(r.Raw) == 0 {
		return ErrMalformedReply
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	return nil
}

type timerFunc func(time.Duration) (<-chan time.Time, func() bool)

// Bridge turns the fire-and-forget host transport plus the shared inbound
// stream into request/response calls. One Bridge is built at startup and
// handed to every component that talks to the bot backend.
type Bridge struct {
	sender  Sender
	bus     *bus.MessageBus
	session Session
	timeout time.Duration
	log     *slog.Logger

	now   func() time.Time
	timer timerFunc
	newID func() string
}

type Option func(*Bridge)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Bridge) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// WithClock replaces the wall clock and the reply timer.
func WithClock(now func() time.Time, timer func(time.Duration) (<-chan time.Time, func() bool)) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
		if timer != nil {
			b.timer = timer
		}
	}
}

// New constructs a bridge over sender and the inbound stream of messageBus.
func New(sender Sender, messageBus *bus.MessageBus, session Session, opts ...Option) (*Bridge, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if messageBus == nil {
		return nil, errors.New("message bus is required")
	}
	if session == nil {
		return nil, errors.New("session is required")
	}

	b := &Bridge{
		sender:  sender,
		bus:     messageBus,
		session: session,
		timeout: DefaultTimeout,
		log:     slog.Default(),
		now:     time.Now,
		timer:   systemTimer,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "bridge")

	return b, nil
}

func systemTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Timeout reports the reply window used by RequestUserData.
func (b *Bridge) Timeout() time.Duration {
	return b.timeout
}

// RequestUserData asks the bot backend for the current user's data and waits
// for the first inbound envelope whose user_id equals the session user.
//
// Two concurrent calls for the same user may receive each other's reply
// unless the backend echoes web_app_query_id.
func (b *Bridge) RequestUserData(ctx context.Context) (Reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	userID, ok := b.session.UserID()
	if !ok {
		return Reply{}, ErrNoUser
	}

	correlationID := correlationPrefix + b.newID()

	// Listen before sending so a fast reply is never missed. Only candidate
	// replies are queued, and the queue never drops them.
	inbound, unsubscribe := b.bus.SubscribeInboundMatching(ctx, inboundBuffer, func(msg bus.InboundMessage) bool {
		_, matched := matchReply(msg.Data, userID, correlationID)
		return matched
	})
	defer unsubscribe()

	expired, stopTimer := b.timer(b.timeout)
	defer stopTimer()

	if err := b.SendWebAppData(ctx, RequestGetUserData, nil, correlationID); err != nil {
		return Reply{}, err
	}
	b.publishEvent(ctx, bus.Event{Type: bus.EventRequestSent, RequestType: RequestGetUserData, CorrelationID: correlationID, UserID: userID})
	b.log.Debug("Awaiting user data", "correlation_id", correlationID, "user_id", userID, "timeout", b.timeout)

	cancelled := func(err error) (Reply, error) {
		b.log.Debug("User data request abandoned", "correlation_id", correlationID, "user_id", userID, "error", err)
		b.publishEvent(ctx, bus.Event{Type: bus.EventRequestCancelled, RequestType: RequestGetUserData, CorrelationID: correlationID, UserID: userID, Error: err.Error()})
		return Reply{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return cancelled(ctx.Err())
		case <-expired:
			b.log.Warn("User data request timed out", "correlation_id", correlationID, "user_id", userID)
			b.publishEvent(ctx, bus.Event{Type: bus.EventRequestTimedOut, RequestType: RequestGetUserData, CorrelationID: correlationID, UserID: userID, Error: ErrTimeout.Error()})
			return Reply{}, fmt.Errorf("%w after %s", ErrTimeout, b.timeout)
		case msg, ok := <-inbound:
			if !ok {
				if err := ctx.Err(); err != nil {
					return cancelled(err)
				}
				return cancelled(ErrClosed)
			}

			raw, matched := matchReply(msg.Data, userID, correlationID)
			if !matched {
				continue
			}

			b.log.Debug("User data reply matched", "correlation_id", correlationID, "user_id", userID, "source", msg.Source)
			b.publishEvent(ctx, bus.Event{Type: bus.EventReplyMatched, RequestType: RequestGetUserData, CorrelationID: correlationID, UserID: userID})
			return Reply{CorrelationID: correlationID, Raw: raw, ReceivedAt: msg.ReceivedAt}, nil
		}
	}
}

// SendWebAppData sends {type, ...fields, timestamp, user_id, web_app_query_id?}.
// queryID is omitted when empty.
func (b *Bridge) SendWebAppData(ctx context.Context, requestType string, fields map[string]any, queryID string) error {
	payload := make(map[string]any, len(fields)+4)
	payload["type"] = requestType
	for key, value := range fields {
		payload[key] = value
	}
	payload["timestamp"] = b.now().UnixMilli()
	if userID, ok := b.session.UserID(); ok {
		payload["user_id"] = userID
	} else {
		delete(payload, "user_id")
	}
	if queryID != "" {
		payload["web_app_query_id"] = queryID
	}

	return b.Send(ctx, payload)
}

// SendPaymentData sends a "payment" envelope.
func (b *Bridge) SendPaymentData(ctx context.Context, fields map[string]any) error {
	return b.SendWebAppData(ctx, RequestPayment, fields, "")
}

// CheckPaymentStatus sends a "check_payment" envelope for invoiceID.
func (b *Bridge) CheckPaymentStatus(ctx context.Context, invoiceID string) error {
	return b.SendWebAppData(ctx, RequestCheckPayment, map[string]any{"invoice_id": invoiceID}, "")
}

// Send serializes payload unless it is already text and hands it to the
// transport. Failures are logged and returned as *TransportError.
func (b *Bridge) Send(ctx context.Context, payload any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := encodePayload(payload)
	if err != nil {
		return b.sendFailed(ctx, &TransportError{Op: "encode payload", Err: err})
	}

	if err := b.deliver(ctx, data); err != nil {
		return b.sendFailed(ctx, &TransportError{Op: "send", Err: err})
	}

	b.log.Debug("Sent data to bot", "bytes", len(data))
	return nil
}

// deliver calls the transport and converts a panic into an error.
func (b *Bridge) deliver(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	return b.sender.Send(ctx, data)
}

func (b *Bridge) sendFailed(ctx context.Context, err *TransportError) error {
	b.log.Error("Failed to send data to bot", "op", err.Op, "error", err.Err)
	b.publishEvent(ctx, bus.Event{Type: bus.EventSendFailed, Error: err.Error()})
	return err
}

func (b *Bridge) publishEvent(ctx context.Context, event bus.Event) {
	if event.At.IsZero() {
		event.At = b.now().UTC()
	}
	// Lifecycle events outlive the request context.
	_ = b.bus.PublishEvent(context.WithoutCancel(ctx), event)
}

func encodePayload(payload any) ([]byte, error) {
	switch value := payload.(type) {
	case nil:
		return nil, errors.New("payload is nil")
	case []byte:
		return value, nil
	case json.RawMessage:
		return value, nil
	case string:
		return []byte(value), nil
	default:
		return json.Marshal(value)
	}
}

type replyEnvelope struct {
	UserID  json.RawMessage `json:"user_id"`
	QueryID *string         `json:"web_app_query_id"`
}

// matchReply reports whether data is a JSON object addressed to userID. When
// the envelope echoes a query id it must also equal correlationID.
func matchReply(data string, userID int64, correlationID string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(data)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var envelope replyEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, false
	}

	if !SameUserID(envelope.UserID, userID) {
		return nil, false
	}
	if envelope.QueryID != nil && *envelope.QueryID != correlationID {
		return nil, false
	}

	return json.RawMessage(trimmed), true
}

// SameUserID reports whether the JSON number raw names userID. Numbers such as
// 42.0 or 4.2e1 equal 42; strings never match.
func SameUserID(raw json.RawMessage, userID int64) bool {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return false
	}

	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id == userID
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) {
		return false
	}

	return f == float64(userID)
}
