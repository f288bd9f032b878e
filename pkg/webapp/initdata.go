package webapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how old auth_date may be before initData is rejected.
const DefaultMaxAge = 24 * time.Hour

var (
	ErrMissingHash  = errors.New("init data has no hash")
	ErrInvalidHash  = errors.New("init data hash mismatch")
	ErrExpired      = errors.New("init data auth_date too old")
	ErrMissingUser  = errors.New("init data has no user")
	ErrEmptyToken   = errors.New("bot token is required to validate init data")
	ErrEmptyPayload = errors.New("init data is empty")
)

// User is the subset of the Mini-App user object the storefront reads.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData is the decoded window.Telegram.WebApp.initData string.
type InitData struct {
	QueryID  string
	User     *User
	AuthDate time.Time
	Hash     string
	Raw      string
}

// ParseInitData decodes raw without checking its signature.
func ParseInitData(raw string) (InitData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return InitData{}, ErrEmptyPayload
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("parse init data: %w", err)
	}

	data := InitData{
		QueryID: values.Get("query_id"),
		Hash:    values.Get("hash"),
		Raw:     raw,
	}

	if authDate := values.Get("auth_date"); authDate != "" {
		unix, err := strconv.ParseInt(authDate, 10, 64)
		if err != nil {
			return InitData{}, fmt.Errorf("parse auth_date: %w", err)
		}
		data.AuthDate = time.Unix(unix, 0).UTC()
	}

	if userJSON := values.Get("user"); userJSON != "" {
		var user User
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			return InitData{}, fmt.Errorf("parse user: %w", err)
		}
		data.User = &user
	}

	return data, nil
}

// ValidateInitData checks the initData signature against botToken and the
// freshness of auth_date. A non-positive maxAge disables the age check.
func ValidateInitData(raw string, botToken string, maxAge time.Duration, now time.Time) (InitData, error) {
	if strings.TrimSpace(botToken) == "" {
		return InitData{}, ErrEmptyToken
	}

	data, err := ParseInitData(raw)
	if err != nil {
		return InitData{}, err
	}
	if data.Hash == "" {
		return InitData{}, ErrMissingHash
	}

	values, err := url.ParseQuery(data.Raw)
	if err != nil {
		return InitData{}, fmt.Errorf("parse init data: %w", err)
	}

	expected := Sign(values, botToken)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(data.Hash))) {
		return InitData{}, ErrInvalidHash
	}

	if maxAge > 0 && (data.AuthDate.IsZero() || now.Sub(data.AuthDate) > maxAge) {
		return InitData{}, ErrExpired
	}
	if data.User == nil {
		return InitData{}, ErrMissingUser
	}

	return data, nil
}

// Sign computes the hex hash Telegram attaches to initData: HMAC-SHA256 of
// the sorted key=value lines, keyed by HMAC("WebAppData", botToken). The
// hash field itself is excluded.
func Sign(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		for _, value := range values[key] {
			lines = append(lines, key+"="+value)
		}
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
