package shop

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Method is a payment method offered on the checkout page.
type Method string

const (
	MethodYooMoney  Method = "yoomoney"
	MethodSBP       Method = "sbp"
	MethodCryptoBot Method = "cryptobot"
	MethodCloudTips Method = "cloudtips"
)

const (
	// MaxScreenshotSize is the largest accepted payment screenshot.
	MaxScreenshotSize = 5 * 1024 * 1024

	defaultUSDTRate     = 85.0
	minOrderID          = 1000
	orderIDSpan         = 9000
	cryptoBotInvoiceURL = "https://t.me/CryptoBot?start="
	cloudTipsPaymentURL = "https://cloudtips.com/payment"
)

var (
	ErrUnknownMethod     = errors.New("unknown payment method")
	ErrScreenshotMethod  = errors.New("payment method does not take a screenshot")
	ErrNoScreenshot      = errors.New("payment screenshot is required")
	ErrNotImage          = errors.New("screenshot must be an image (JPG, PNG)")
	ErrScreenshotTooBig  = errors.New("screenshot is too large, maximum 5MB")
	ErrNoTierSelected    = errors.New("no subscription selected")
	ErrNoInvoice         = errors.New("crypto invoice not found")
	ErrRequisitesMissing = errors.New("payment requisites are not configured")
)

// ParseMethod accepts the method identifiers used by the backend.
func ParseMethod(value string) (Method, error) {
	switch method := Method(strings.ToLower(strings.TrimSpace(value))); method {
	case MethodYooMoney, MethodSBP, MethodCryptoBot, MethodCloudTips:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, value)
	}
}

// TakesScreenshot reports whether the method is confirmed by a screenshot of
// a manual transfer.
func (m Method) TakesScreenshot() bool {
	return m == MethodYooMoney || m == MethodSBP
}

// Order is one checkout attempt for a tier.
type Order struct {
	ID     int
	Tier   Tier
	Method Method
}

func (o Order) Amount() int {
	return o.Tier.Price
}

// Screenshot is an uploaded proof of payment.
type Screenshot struct {
	Name        string
	ContentType string
	Data        []byte
}

// Validate checks the content type and the size limit. An empty content type
// is sniffed from the data.
func (s Screenshot) Validate() error {
	if len(s.Data) == 0 {
		return ErrNoScreenshot
	}
	if !strings.HasPrefix(s.contentType(), "image/") {
		return ErrNotImage
	}
	if len(s.Data) > MaxScreenshotSize {
		return ErrScreenshotTooBig
	}
	return nil
}

// DataURL encodes the screenshot as a base64 data URL.
func (s Screenshot) DataURL() string {
	return "data:" + s.contentType() + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

func (s Screenshot) contentType() string {
	if ct := strings.TrimSpace(s.ContentType); ct != "" {
		return strings.ToLower(ct)
	}
	return http.DetectContentType(s.Data)
}

// CryptoInvoice is a CryptoBot invoice for an order.
type CryptoInvoice struct {
	ID         string
	URL        string
	AmountUSDT string
}

// usdtAmount converts rubles at rate with two decimals.
func usdtAmount(rubles int, rate float64) string {
	if rate <= 0 {
		rate = defaultUSDTRate
	}
	return strconv.FormatFloat(float64(rubles)/rate, 'f', 2, 64)
}

// CloudTipsURL links to the tipping page with the order amount, or the
// cheapest default price when no amount is known.
func CloudTipsURL(amount int) string {
	if amount <= 0 {
		amount = DefaultPrices.ThreeMonths
	}
	return cloudTipsPaymentURL + "?amount=" + strconv.Itoa(amount)
}

// Requisites are the manual transfer details shown for an order.
type Requisites struct {
	Wallet   string
	Phone    string
	Receiver string
}

// Checkout is everything the payment page shows for one order.
type Checkout struct {
	Order      Order
	Requisites Requisites
	Invoice    *CryptoInvoice
	PayURL     string
}

// ShareURL builds the Telegram share link for a referral link.
func ShareURL(link string, text string) string {
	return "https://t.me/share/url?url=" + encodeURIComponent(link) + "&text=" + encodeURIComponent(text)
}

// ReferralLink builds the bot deep link carrying a referral code.
func ReferralLink(botUsername string, code string) string {
	botUsername = strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	if botUsername == "" {
		botUsername = "your_bot"
	}
	return "https://t.me/" + botUsername + "?start=" + url.QueryEscape(code)
}

func encodeURIComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
