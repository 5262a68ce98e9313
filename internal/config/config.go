// Package config provides configuration parsing and validation for silkprotod.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete silkprotod runtime configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Listen    ListenConfig    `yaml:"listen"`
	Handshake HandshakeConfig `yaml:"handshake"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, auto
}

// ListenConfig controls the listening side of the session runtime.
type ListenConfig struct {
	Address        string        `yaml:"address"`
	AcceptTimeout  time.Duration `yaml:"accept_timeout"`
	HandshakeGrace time.Duration `yaml:"handshake_grace"`
}

// HandshakeConfig controls which options a responder offers to initiators.
type HandshakeConfig struct {
	Encryption     bool `yaml:"encryption"`
	ErrorDetection bool `yaml:"error_detection"`
	KeyExchange    bool `yaml:"key_exchange"`
	KeyChallenge   bool `yaml:"key_challenge"`
}

// RateLimitConfig bounds the frame rate a session will accept. Frames past
// the budget are delayed until a token is available; exceeding it does not
// disconnect the session.
type RateLimitConfig struct {
	FramesPerSecond float64 `yaml:"frames_per_second"`
	Burst           int     `yaml:"burst"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Listen: ListenConfig{
			Address:        ":15779",
			AcceptTimeout:  30 * time.Second,
			HandshakeGrace: 10 * time.Second,
		},
		Handshake: HandshakeConfig{
			Encryption:     true,
			ErrorDetection: true,
			KeyExchange:    true,
			KeyChallenge:   true,
		},
		RateLimit: RateLimitConfig{
			FramesPerSecond: 200,
			Burst:           400,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default() and
// overlaying whatever the document sets.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR, with an optional ${VAR:-default} form.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level: invalid value %q", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format: invalid value %q", c.Log.Format))
	}
	if c.Listen.Address == "" {
		errs = append(errs, "listen.address: must not be empty")
	}
	if c.RateLimit.FramesPerSecond <= 0 {
		errs = append(errs, "rate_limit.frames_per_second: must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, "rate_limit.burst: must be positive")
	}
	if !c.Handshake.Encryption && c.Handshake.KeyExchange {
		errs = append(errs, "handshake.key_exchange: requires handshake.encryption")
	}
	if !c.Handshake.ErrorDetection && c.Handshake.KeyChallenge {
		errs = append(errs, "handshake.key_challenge: requires handshake.error_detection")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json", "auto":
		return true
	}
	return false
}

// OptionsByte packs the handshake booleans into the negotiated option bitset
// value consumers of the handshake package expect. Defined here rather than
// in package handshake to keep that package free of a config dependency.
func (h HandshakeConfig) OptionsByte() uint8 {
	var o uint8
	if h.Encryption {
		o |= 1 << 0
	}
	if h.ErrorDetection {
		o |= 1 << 1
	}
	if h.KeyExchange {
		o |= 1 << 2
	}
	if h.KeyChallenge {
		o |= 1 << 3
	}
	return o
}
