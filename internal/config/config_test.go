package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "3001" {
		t.Errorf("expected default port 3001, got %s", cfg.Port)
	}
	if cfg.MaxMessages != 200 {
		t.Errorf("expected retention cap 200, got %d", cfg.MaxMessages)
	}
	if cfg.MaxMessageLength != 1000 {
		t.Errorf("expected message length cap 1000, got %d", cfg.MaxMessageLength)
	}
	if !cfg.EnableRealtime {
		t.Error("realtime mode should default to on")
	}
	if cfg.ReconnectBaseDelay != time.Second {
		t.Errorf("expected 1s base delay, got %s", cfg.ReconnectBaseDelay)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("expected 5 reconnect attempts, got %d", cfg.MaxReconnectAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("MAX_MESSAGES", "50")
	t.Setenv("ENABLE_REALTIME", "false")
	t.Setenv("RECONNECT_BASE_DELAY_MS", "250")

	cfg := Load()

	if cfg.IsDevelopment() {
		t.Error("production config must not report development")
	}
	if cfg.MaxMessages != 50 {
		t.Errorf("expected retention cap 50, got %d", cfg.MaxMessages)
	}
	if cfg.EnableRealtime {
		t.Error("realtime mode should be off")
	}
	if cfg.ReconnectBaseDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms base delay, got %s", cfg.ReconnectBaseDelay)
	}
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("MAX_MESSAGES", "not-a-number")

	cfg := Load()
	if cfg.MaxMessages != 200 {
		t.Errorf("garbage values must fall back to the default, got %d", cfg.MaxMessages)
	}
}
