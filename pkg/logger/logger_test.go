package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"premiumshop/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.With("component", "bridge").Info("Reply matched", "correlation_id", "user_data_1", "user_id", int64(42), "error", errors.New("boom"))

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Component != "bridge" {
		t.Fatalf("component = %q, want %q", entry.Component, "bridge")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["correlation_id"]; got != "user_data_1" {
		t.Fatalf("fields.correlation_id = %v, want %q", got, "user_data_1")
	}
	if got := entry.Fields["user_id"]; got != float64(42) {
		t.Fatalf("fields.user_id = %v, want 42", got)
	}
	if got := entry.Fields["error"]; got != "boom" {
		t.Fatalf("fields.error = %v, want boom", got)
	}
}

func TestLoggerGroupsPrefixKeys(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.WithGroup("order").Info("Order created", "id", 1234)

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if got := entry.Fields["order.id"]; got != float64(1234) {
		t.Fatalf("fields[order.id] = %v, want 1234", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFormat, "text")

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerRejectsUnknownSettings(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := NewWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := NewWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envLogLevel, envLogFormat, envLogAddSource} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
