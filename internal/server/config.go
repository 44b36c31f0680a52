// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the IRC service.
package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const serverNameLimit = 63

// RateLimitConfig defines the parameters for per-connection line rate limiting.
// Lines over the limit wait in a queue of at most QueueBytes bytes; a client
// that overflows it is disconnected.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
	QueueBytes     int           `env:"QUEUE_BYTES"`
}

// Config holds the server configuration. Environment variables use the
// IRCD_ prefix, e.g. IRCD_PORTS=6667,6668.
type Config struct {
	ServerName string `env:"SERVER_NAME"`
	Ports      []int  `env:"PORTS" envSeparator:","`
	Listen     string `env:"LISTEN"`
	IPv6       bool   `env:"IPV6"`

	Password     string `env:"PASSWORD"`
	PasswordFile string `env:"PASSWORD_FILE"`

	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	StateDir      string `env:"STATE_DIR"`
	StateDB       string `env:"STATE_DB"`
	ChannelLogDir string `env:"CHANNEL_LOG_DIR"`
	Cloak         string `env:"CLOAK"`
	MOTDFile      string `env:"MOTD_FILE"`

	WebSocketAddr  string   `env:"WEBSOCKET_ADDR"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	MaxLineLength int             `env:"MAX_LINE_LENGTH"`
	SendQueueLen  int             `env:"SEND_QUEUE_LEN"`
	RateLimit     RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	PingInterval       time.Duration `env:"PING_INTERVAL"`
	PingTimeout        time.Duration `env:"PING_TIMEOUT"`
	AliveCheckInterval time.Duration `env:"ALIVE_CHECK_INTERVAL"`

	Verbose bool `env:"VERBOSE"`
	Debug   bool `env:"DEBUG"`
}

func defaultConfig() Config {
	return Config{
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxLineLength: 8192,
		SendQueueLen:  512,
		RateLimit: RateLimitConfig{
			Burst:          30,
			RefillInterval: time.Second,
			QueueBytes:     64 * 1024,
		},
		PingInterval:       90 * time.Second,
		PingTimeout:        180 * time.Second,
		AliveCheckInterval: 10 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	if len(cfg.Ports) == 0 {
		if cfg.TLSCertFile != "" {
			cfg.Ports = []int{6697}
		} else {
			cfg.Ports = []int{6667}
		}
	}

	if cfg.ServerName == "" {
		cfg.ServerName = defaultServerName()
	}
	if len(cfg.ServerName) > serverNameLimit {
		cfg.ServerName = cfg.ServerName[:serverNameLimit]
	}

	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = 8192
	}

	if cfg.SendQueueLen <= 0 {
		cfg.SendQueueLen = 512
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 30
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.RateLimit.QueueBytes <= 0 {
		cfg.RateLimit.QueueBytes = 64 * 1024
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 90 * time.Second
	}

	if cfg.PingTimeout <= cfg.PingInterval {
		cfg.PingTimeout = 2 * cfg.PingInterval
	}

	if cfg.AliveCheckInterval <= 0 {
		cfg.AliveCheckInterval = 10 * time.Second
	}

	if cfg.Debug {
		cfg.Verbose = true
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func defaultServerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from IRCD_* environment variables.
// Unset variables keep their default values.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "IRCD_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// ResolvePassword returns the connection password, reading PasswordFile when
// it is set. Newlines around the file contents are stripped.
func (cfg Config) ResolvePassword() (string, error) {
	if cfg.PasswordFile == "" {
		return cfg.Password, nil
	}
	data, err := os.ReadFile(cfg.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("read password file: %w", err)
	}
	return strings.Trim(string(data), "\r\n"), nil
}
