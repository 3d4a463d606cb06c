// Package config loads runtime settings from CMDBOT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hyperifyio/cmdbot/internal/sandbox"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Config is the process configuration. CLI flags override individual fields
// after ParseEnv.
type Config struct {
	Store     string `env:"CMDBOT_STORE" envDefault:"sqlite"`
	StorePath string `env:"CMDBOT_STORE_PATH" envDefault:"cmdbot.db"`

	ScriptTimeout   time.Duration `env:"CMDBOT_SCRIPT_TIMEOUT" envDefault:"5s"`
	ScriptMaxLength int           `env:"CMDBOT_SCRIPT_MAX_LENGTH" envDefault:"10000"`
	ScriptOutputKB  int           `env:"CMDBOT_SCRIPT_OUTPUT_KB" envDefault:"4"`

	ReplyUnknown bool   `env:"CMDBOT_REPLY_UNKNOWN" envDefault:"false"`
	BotID        string `env:"CMDBOT_BOT_ID"`

	LogLevel  string `env:"CMDBOT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CMDBOT_LOG_FORMAT" envDefault:"text"`

	AuditDir    string `env:"CMDBOT_AUDIT_DIR"`
	AuditRedact string `env:"CMDBOT_AUDIT_REDACT"`

	SocketIOURL       string `env:"CMDBOT_SOCKETIO_URL" envDefault:"http://127.0.0.1:3000"`
	SocketIONamespace string `env:"CMDBOT_SOCKETIO_NAMESPACE" envDefault:"/"`

	OTelEndpoint string `env:"CMDBOT_OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreSQLite, StoreFile:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("CMDBOT_STORE_PATH is required for the %s store", c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want sqlite, file or memory)", c.Store)
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("script timeout must be positive, got %s", c.ScriptTimeout)
	}
	if c.ScriptMaxLength <= 0 {
		return fmt.Errorf("script max length must be positive, got %d", c.ScriptMaxLength)
	}
	if c.ScriptOutputKB <= 0 {
		return fmt.Errorf("script output limit must be positive, got %d", c.ScriptOutputKB)
	}
	return nil
}

// Sandbox returns the engine limits described by c.
func (c Config) Sandbox() sandbox.Config {
	return sandbox.Config{
		MaxSourceLength: c.ScriptMaxLength,
		Timeout:         c.ScriptTimeout,
		OutputKB:        c.ScriptOutputKB,
	}
}
