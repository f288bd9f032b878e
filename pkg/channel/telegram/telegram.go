package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"premiumshop/pkg/bus"
	"premiumshop/pkg/channel"
	"premiumshop/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	transportName       = "telegram"
	messagePreviewLimit = 240
	// Telegram rejects text messages longer than this many characters.
	messageTextLimit = 4096
	envelopeFileName = "envelope.json"
)

// Transport relays envelopes to the bot backend chat and publishes whatever
// that chat sends back onto the inbound stream.
type Transport struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	bot       *telego.Bot
	log       *slog.Logger
}

// NewTransport validates Telegram configuration and constructs the bot client.
func NewTransport(cfg config.TelegramConfig, log *slog.Logger) (*Transport, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}
	if cfg.BackendChatID == 0 {
		return nil, errors.New("channels.telegram.backend_chat_id is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		bot:       bot,
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the transport identifier used in bus messages and logs.
func (t *Transport) Name() string {
	return transportName
}

// Send delivers one envelope to the backend chat. Envelopes that do not fit
// in a text message go as a JSON document.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	chatID := tu.ID(t.cfg.BackendChatID)

	if fitsInMessage(data) {
		if _, err := t.bot.SendMessage(ctx, tu.Message(chatID, string(data))); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		t.log.Debug("Relayed envelope", "chat_id", t.cfg.BackendChatID, "content", previewText(string(data)))
		return nil
	}

	document := tu.Document(chatID, tu.File(tu.NameReader(bytes.NewReader(data), envelopeFileName)))
	if _, err := t.bot.SendDocument(ctx, document); err != nil {
		return fmt.Errorf("send telegram document: %w", err)
	}
	t.log.Debug("Relayed envelope as document", "chat_id", t.cfg.BackendChatID, "bytes", len(data))
	return nil
}

// Run long-polls Telegram and forwards backend chat messages to sink.
func (t *Transport) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	updates, err := t.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	t.log.Info("Telegram transport started", "backend_chat_id", t.cfg.BackendChatID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := t.inboundFromUpdate(update)
			if !ok {
				continue
			}

			t.log.Debug("Received envelope", "update_id", update.UpdateID, "content", previewText(inbound.Data))
			if !sink(ctx, inbound) {
				t.log.Warn("Inbound stream rejected envelope", "update_id", update.UpdateID)
			}
		}
	}
}

// inboundFromUpdate extracts the payload of one update coming from the
// backend chat. Web App data, text and captions are accepted.
func (t *Transport) inboundFromUpdate(update telego.Update) (bus.InboundMessage, bool) {
	message := update.Message
	if message == nil {
		message = update.ChannelPost
	}
	if message == nil {
		return bus.InboundMessage{}, false
	}

	if message.Chat.ID != t.cfg.BackendChatID {
		t.log.Debug("Ignoring message outside backend chat", "chat_id", message.Chat.ID)
		return bus.InboundMessage{}, false
	}

	if message.From != nil {
		senderID := strconv.FormatInt(message.From.ID, 10)
		if !t.senderAllowed(senderID) {
			t.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
			return bus.InboundMessage{}, false
		}
	}

	data := payloadText(message)
	if data == "" {
		return bus.InboundMessage{}, false
	}

	return bus.InboundMessage{Source: transportName, Data: data}, true
}

func payloadText(message *telego.Message) string {
	if message.WebAppData != nil {
		if data := strings.TrimSpace(message.WebAppData.Data); data != "" {
			return data
		}
	}
	if text := strings.TrimSpace(message.Text); text != "" {
		return text
	}
	return strings.TrimSpace(message.Caption)
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (t *Transport) senderAllowed(senderID string) bool {
	if len(t.allowFrom) == 0 {
		return true
	}

	_, ok := t.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func fitsInMessage(data []byte) bool {
	return utf8.Valid(data) && utf8.RuneCount(data) <= messageTextLimit
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
