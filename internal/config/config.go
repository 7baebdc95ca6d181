// Package config loads the outer binary's configuration and the
// library's ConnectOptions from an optional .env file, an optional
// JSON file, and environment variables (SPEC_FULL.md §4.12). The .env
// file is loaded into the process environment without overriding
// variables already set there, so its values, like any other
// environment variable, take precedence over the JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the outer binary's own configuration -- the library
// core itself takes no environment variables (spec.md §6).
type Config struct {
	// ControlURL is the WebSocket URL of the WhatsApp edge to dial.
	ControlURL string `json:"control_url"`

	// AuthToken, if set, is forwarded as a bearer header on the dial
	// handshake (for environments that sit behind an authenticating
	// reverse proxy in front of the edge).
	AuthToken string `json:"auth_token,omitempty"`

	// LogLevel: "trace", "debug", "info", "warn", "error". Default "info".
	LogLevel string `json:"log_level"`

	// MetricsAddr, if non-empty, is the listen address for the
	// Prometheus /metrics endpoint. Empty disables it.
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// Options mirrors ConnectOptions (spec.md §3) so it can be loaded the
// same way as Config.
type Options struct {
	MaxIdleMs         int  `json:"max_idle_ms"`
	MaxRetries        int  `json:"max_retries"`
	ConnectCooldownMs int  `json:"connect_cooldown_ms"`
	PhoneResponseMs   int  `json:"phone_response_ms"`
	AlwaysUseTakeover bool `json:"always_use_takeover"`
}

// Load reads dotenvPath (if it exists; a missing file is not an
// error) into the process environment, then jsonPath (if non-empty),
// then environment variables. Environment variables, including those
// set from the .env file, override the JSON file; the .env file does
// not override variables already set in the process.
func Load(dotenvPath, jsonPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load .env %q: %w", dotenvPath, err)
		}
	}

	cfg := defaults()

	if jsonPath != "" {
		if err := loadJSONFile(cfg, jsonPath); err != nil {
			return nil, fmt.Errorf("config: load file %q: %w", jsonPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptions reads ConnectOptions the same way Load reads Config,
// assuming Load (or godotenv.Load directly) has already populated the
// process environment.
func LoadOptions() *Options {
	opts := &Options{
		MaxIdleMs:         30_000,
		MaxRetries:        5,
		ConnectCooldownMs: 3_000,
		PhoneResponseMs:   20_000,
		AlwaysUseTakeover: false,
	}
	if v := os.Getenv("WAWIRE_MAX_IDLE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxIdleMs = n
		}
	}
	if v := os.Getenv("WAWIRE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxRetries = n
		}
	}
	if v := os.Getenv("WAWIRE_CONNECT_COOLDOWN_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.ConnectCooldownMs = n
		}
	}
	if v := os.Getenv("WAWIRE_PHONE_RESPONSE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.PhoneResponseMs = n
		}
	}
	if v := os.Getenv("WAWIRE_ALWAYS_TAKEOVER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.AlwaysUseTakeover = b
		}
	}
	return opts
}

// AsDurations converts the millisecond fields to time.Duration for
// convenient use by the Connection State Machine and Liveness
// Controller.
func (o *Options) AsDurations() (maxIdle, connectCooldown, phoneResponse time.Duration) {
	return time.Duration(o.MaxIdleMs) * time.Millisecond,
		time.Duration(o.ConnectCooldownMs) * time.Millisecond,
		time.Duration(o.PhoneResponseMs) * time.Millisecond
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
	}
}

func loadJSONFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WAWIRE_CONTROL_URL"); v != "" {
		cfg.ControlURL = v
	}
	if v := os.Getenv("WAWIRE_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("WAWIRE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WAWIRE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func (c *Config) validate() error {
	if c.ControlURL == "" {
		return fmt.Errorf("config: WAWIRE_CONTROL_URL is required")
	}
	return nil
}
