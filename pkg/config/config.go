package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envConfigPath            = "PREMIUMSHOP_CONFIG"
	envDotEnvPath            = "PREMIUMSHOP_DOTENV"
	envTelegramBotToken      = "TELEGRAM_BOT_TOKEN"
	envTelegramBackendChatID = "TELEGRAM_BACKEND_CHAT_ID"
	envTelegramAllowFrom     = "TELEGRAM_ALLOW_FROM"
	envInitData              = "PREMIUMSHOP_INIT_DATA"
	envInboundToken          = "PREMIUMSHOP_INBOUND_TOKEN"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Shop     ShopConfig     `json:"shop"`
	Bridge   BridgeConfig   `json:"bridge"`
	WebApp   WebAppConfig   `json:"webapp"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ShopConfig holds storefront prices, requisites and links. Zero values fall
// back to the storefront defaults.
type ShopConfig struct {
	DefaultPrices          PricesConfig `json:"default_prices"`
	RefreshIntervalSeconds int          `json:"refresh_interval_seconds"`
	USDTRate               float64      `json:"usdt_rate"`
	YooMoneyWallet         string       `json:"yoomoney_wallet"`
	SBPPhone               string       `json:"sbp_phone"`
	SBPReceiver            string       `json:"sbp_receiver"`
	BotUsername            string       `json:"bot_username"`
	SupportURL             string       `json:"support_url"`
}

// PricesConfig lists subscription prices in rubles.
type PricesConfig struct {
	ThreeMonths  int `json:"three_months"`
	SixMonths    int `json:"six_months"`
	TwelveMonths int `json:"twelve_months"`
}

// BridgeConfig tunes the request/response bridge.
type BridgeConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// WebAppConfig describes the Mini-App session the storefront acts for.
type WebAppConfig struct {
	InitData       string `json:"init_data"`
	Platform       string `json:"platform"`
	MaxAgeHours    int    `json:"max_age_hours"`
	SkipValidation bool   `json:"skip_validation"`
}

// ChannelsConfig stores host transport settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Loopback LoopbackConfig `json:"loopback"`
}

// TelegramConfig configures the Telegram relay transport.
type TelegramConfig struct {
	Enabled       bool     `json:"enabled"`
	Token         string   `json:"token"`
	BackendChatID int64    `json:"backend_chat_id"`
	AllowFrom     []string `json:"allow_from"`
}

// LoopbackConfig enables the in-process transport.
type LoopbackConfig struct {
	Enabled bool `json:"enabled"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// InboundToken, when set, must be sent as X-Bridge-Token on POST /bridge/inbound.
	InboundToken string `json:"inbound_token"`
}

// LoadConfig loads .env, resolves config.json, unmarshals it, and applies
// environment overrides.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads KEY=VALUE pairs into the environment without overriding
// variables that are already set. A missing default .env is not an error.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(envDotEnvPath))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawChatID := strings.TrimSpace(os.Getenv(envTelegramBackendChatID)); rawChatID != "" {
		chatID, err := strconv.ParseInt(rawChatID, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envTelegramBackendChatID, err)
		}
		cfg.Channels.Telegram.BackendChatID = chatID
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if initData := strings.TrimSpace(os.Getenv(envInitData)); initData != "" {
		cfg.WebApp.InitData = initData
	}

	if token := strings.TrimSpace(os.Getenv(envInboundToken)); token != "" {
		cfg.Gateway.InboundToken = token
	}

	return nil
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is PREMIUMSHOP_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
