package log

import (
	"testing"

	"order-gateway/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Encoding: "json"})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Errorf("expected debug level to be enabled")
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
