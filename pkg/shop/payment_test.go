package shop

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestParseMethod(t *testing.T) {
	t.Parallel()

	method, err := ParseMethod(" SBP ")
	require.NoError(t, err)
	require.Equal(t, MethodSBP, method)

	_, err = ParseMethod("paypal")
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestTakesScreenshot(t *testing.T) {
	t.Parallel()

	require.True(t, MethodYooMoney.TakesScreenshot())
	require.True(t, MethodSBP.TakesScreenshot())
	require.False(t, MethodCryptoBot.TakesScreenshot())
	require.False(t, MethodCloudTips.TakesScreenshot())
}

func TestScreenshotValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		shot Screenshot
		want error
	}{
		{name: "png", shot: Screenshot{Name: "a.png", ContentType: "image/png", Data: pngHeader}},
		{name: "sniffed png", shot: Screenshot{Name: "a", Data: pngHeader}},
		{name: "empty", shot: Screenshot{Name: "a.png", ContentType: "image/png"}, want: ErrNoScreenshot},
		{name: "pdf", shot: Screenshot{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, want: ErrNotImage},
		{name: "sniffed text", shot: Screenshot{Name: "a.txt", Data: []byte("hello")}, want: ErrNotImage},
		{
			name: "too big",
			shot: Screenshot{Name: "big.jpg", ContentType: "image/jpeg", Data: bytes.Repeat([]byte{1}, MaxScreenshotSize+1)},
			want: ErrScreenshotTooBig,
		},
		{
			name: "exactly the limit",
			shot: Screenshot{Name: "max.jpg", ContentType: "image/jpeg", Data: bytes.Repeat([]byte{1}, MaxScreenshotSize)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.shot.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tt.want), "Validate() = %v, want %v", err, tt.want)
		})
	}
}

func TestScreenshotDataURL(t *testing.T) {
	t.Parallel()

	shot := Screenshot{ContentType: "image/png", Data: []byte("abc")}
	require.Equal(t, "data:image/png;base64,YWJj", shot.DataURL())

	sniffed := Screenshot{Data: pngHeader}
	require.True(t, strings.HasPrefix(sniffed.DataURL(), "data:image/png;base64,"))
}

func TestUSDTAmount(t *testing.T) {
	t.Parallel()

	require.Equal(t, "11.65", usdtAmount(990, 85))
	require.Equal(t, "4.59", usdtAmount(390, 0))
	require.Equal(t, "10.00", usdtAmount(1000, 100))
}

func TestCloudTipsURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://cloudtips.com/payment?amount=690", CloudTipsURL(690))
	require.Equal(t, "https://cloudtips.com/payment?amount=390", CloudTipsURL(0))
}

func TestReferralAndShareLinks(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://t.me/premium_shop_bot?start=TG123", ReferralLink("@premium_shop_bot", "TG123"))
	require.Equal(t, "https://t.me/your_bot?start=REF1", ReferralLink("", "REF1"))

	share := ShareURL("https://t.me/bot?start=A", "Hello world!")
	require.Equal(t, "https://t.me/share/url?url=https%3A%2F%2Ft.me%2Fbot%3Fstart%3DA&text=Hello%20world%21", share)
}
