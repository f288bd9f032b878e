package telegram

import (
	"strings"
	"testing"

	"premiumshop/pkg/config"
	"premiumshop/pkg/logger"

	"github.com/mymmrac/telego"
)

func testTransport(allowFrom ...string) *Transport {
	return &Transport{
		cfg:       config.TelegramConfig{BackendChatID: -100},
		allowFrom: allowFromSet(allowFrom),
		log:       logger.Discard(),
	}
}

func TestNewTransportValidatesConfig(t *testing.T) {
	if _, err := NewTransport(config.TelegramConfig{BackendChatID: 1}, nil); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := NewTransport(config.TelegramConfig{Token: "123:abc"}, nil); err == nil {
		t.Fatal("expected error without backend chat id")
	}
}

func TestInboundFromUpdate(t *testing.T) {
	transport := testTransport()

	tests := []struct {
		name   string
		update telego.Update
		want   string
		wantOK bool
	}{
		{
			name:   "text from backend chat",
			update: telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: -100}, Text: ` {"user_id":42} `}},
			want:   `{"user_id":42}`,
			wantOK: true,
		},
		{
			name:   "channel post caption",
			update: telego.Update{ChannelPost: &telego.Message{Chat: telego.Chat{ID: -100}, Caption: `{"user_id":1}`}},
			want:   `{"user_id":1}`,
			wantOK: true,
		},
		{
			name: "web app data wins over text",
			update: telego.Update{Message: &telego.Message{
				Chat:       telego.Chat{ID: -100},
				Text:       "ignored",
				WebAppData: &telego.WebAppData{Data: `{"type":"payment"}`},
			}},
			want:   `{"type":"payment"}`,
			wantOK: true,
		},
		{
			name:   "other chat",
			update: telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 5}, Text: "hi"}},
		},
		{
			name:   "empty text",
			update: telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: -100}}},
		},
		{
			name:   "no message",
			update: telego.Update{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := transport.inboundFromUpdate(tt.update)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got.Data != tt.want {
				t.Fatalf("data = %q, want %q", got.Data, tt.want)
			}
			if ok && got.Source != transportName {
				t.Fatalf("source = %q, want %q", got.Source, transportName)
			}
		})
	}
}

func TestInboundFromUpdateHonorsAllowList(t *testing.T) {
	transport := testTransport("7")

	denied := telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: -100}, From: &telego.User{ID: 8}, Text: "{}"}}
	if _, ok := transport.inboundFromUpdate(denied); ok {
		t.Fatal("expected sender 8 to be ignored")
	}

	allowed := telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: -100}, From: &telego.User{ID: 7}, Text: "{}"}}
	if _, ok := transport.inboundFromUpdate(allowed); !ok {
		t.Fatal("expected sender 7 to be accepted")
	}
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if allowFromSet([]string{" ", ""}) != nil {
		t.Fatal("expected nil set for blank values")
	}
}

func TestFitsInMessage(t *testing.T) {
	if !fitsInMessage([]byte(strings.Repeat("я", messageTextLimit))) {
		t.Fatal("expected limit-sized multibyte text to fit")
	}
	if fitsInMessage([]byte(strings.Repeat("a", messageTextLimit+1))) {
		t.Fatal("expected oversized text not to fit")
	}
	if fitsInMessage([]byte{0xff, 0xfe}) {
		t.Fatal("expected invalid utf-8 not to fit")
	}
}

func TestPreviewText(t *testing.T) {
	if got := previewText(" hello "); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	got := previewText(strings.Repeat("a", messagePreviewLimit+20))
	if len(got) != messagePreviewLimit+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want truncated with ellipsis", got)
	}
}
