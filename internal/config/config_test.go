package config

import (
	"os"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	doc := []byte(`
log:
  level: debug
listen:
  address: "0.0.0.0:9000"
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Listen.Address != "0.0.0.0:9000" {
		t.Fatalf("Listen.Address = %q", cfg.Listen.Address)
	}
	// Untouched defaults survive the overlay.
	if cfg.RateLimit.FramesPerSecond != Default().RateLimit.FramesPerSecond {
		t.Fatal("rate limit default should be preserved")
	}
}

func TestParseRejectsInvalidLogLevel(t *testing.T) {
	_, err := Parse([]byte("log:\n  level: noisy\n"))
	if err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("SILKPROTOD_TEST_ADDR", "127.0.0.1:7777")
	defer os.Unsetenv("SILKPROTOD_TEST_ADDR")

	doc := []byte(`
listen:
  address: "${SILKPROTOD_TEST_ADDR}"
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen.Address != "127.0.0.1:7777" {
		t.Fatalf("Listen.Address = %q", cfg.Listen.Address)
	}
}

func TestExpandEnvVarsDefault(t *testing.T) {
	doc := []byte(`
listen:
  address: "${SILKPROTOD_UNSET_VAR:-10.0.0.1:1}"
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen.Address != "10.0.0.1:1" {
		t.Fatalf("Listen.Address = %q", cfg.Listen.Address)
	}
}

func TestHandshakeConfigOptionsByte(t *testing.T) {
	h := HandshakeConfig{Encryption: true, ErrorDetection: true, KeyExchange: true, KeyChallenge: true}
	if h.OptionsByte() != 0x0F {
		t.Fatalf("OptionsByte() = %#x, want 0x0f", h.OptionsByte())
	}
}

func TestValidateRejectsKeyExchangeWithoutEncryption(t *testing.T) {
	cfg := Default()
	cfg.Handshake.Encryption = false
	cfg.Handshake.KeyExchange = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
