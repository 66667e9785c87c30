package clientconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"gopkg.in/yaml.v3"
)

// Config holds everything the headless client needs to run
type Config struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Turn      TurnConfig      `yaml:"turn"`
	Status    StatusConfig    `yaml:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type ReconnectConfig struct {
	BaseDelayMS    int `yaml:"base_delay_ms"`
	MaxAttempts    int `yaml:"max_attempts"`
	WriteTimeoutMS int `yaml:"write_timeout_ms"`
}

// TurnConfig describes the card used to pad a selection when the turn timer expires
type TurnConfig struct {
	DefaultCardID   string `yaml:"default_card_id"`
	DefaultCardName string `yaml:"default_card_name"`
}

type StatusConfig struct {
	// Addr is the listen address of the local status API. Empty disables it.
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TelemetryConfig struct {
	// URL of the NATS server. Empty disables the relay.
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the built-in configuration
func Default() Config {
	card := events.DefaultCard()
	return Config{
		Endpoint: "ws://localhost:3001/ws",
		Reconnect: ReconnectConfig{
			BaseDelayMS:    1000,
			MaxAttempts:    5,
			WriteTimeoutMS: 10000,
		},
		Turn: TurnConfig{
			DefaultCardID:   card.ID,
			DefaultCardName: card.Name,
		},
		Status: StatusConfig{
			AllowedOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			Subject: "cardduel.client",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load builds the config from defaults, the optional YAML file at path and
// the environment, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Endpoint = getEnv("GAME_SERVER_URL", c.Endpoint)
	c.Token = getEnv("GAME_AUTH_TOKEN", c.Token)
	c.Username = getEnv("GAME_USERNAME", c.Username)

	c.Reconnect.BaseDelayMS = getEnvAsInt("RECONNECT_BASE_DELAY_MS", c.Reconnect.BaseDelayMS)
	c.Reconnect.MaxAttempts = getEnvAsInt("RECONNECT_MAX_ATTEMPTS", c.Reconnect.MaxAttempts)
	c.Reconnect.WriteTimeoutMS = getEnvAsInt("WRITE_TIMEOUT_MS", c.Reconnect.WriteTimeoutMS)

	c.Status.Addr = getEnv("STATUS_ADDR", c.Status.Addr)
	c.Telemetry.URL = getEnv("NATS_URL", c.Telemetry.URL)
	c.Telemetry.Subject = getEnv("TELEMETRY_SUBJECT", c.Telemetry.Subject)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
}

// Validate rejects settings the client cannot run with
func (c Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if u, err := url.Parse(c.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("invalid endpoint: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme))
	}

	if c.Reconnect.BaseDelayMS <= 0 {
		errs = append(errs, fmt.Errorf("reconnect base delay must be positive, got %d", c.Reconnect.BaseDelayMS))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect max attempts must not be negative, got %d", c.Reconnect.MaxAttempts))
	}
	if c.Turn.DefaultCardID == "" {
		errs = append(errs, errors.New("default card id is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid client config: %w", errors.Join(errs...))
	}
	return nil
}

// ConnectionConfig maps the reconnect settings onto the manager config
func (c Config) ConnectionConfig() connection.Config {
	cfg := connection.DefaultConfig()
	cfg.BaseDelay = time.Duration(c.Reconnect.BaseDelayMS) * time.Millisecond
	cfg.MaxReconnectAttempts = c.Reconnect.MaxAttempts
	if c.Reconnect.WriteTimeoutMS > 0 {
		cfg.WriteTimeout = time.Duration(c.Reconnect.WriteTimeoutMS) * time.Millisecond
	}
	return cfg
}

// DefaultCard is the fallback card described by the turn settings
func (c Config) DefaultCard() events.Card {
	return events.Card{ID: c.Turn.DefaultCardID, Name: c.Turn.DefaultCardName}
}

// Credentials returns the token and username used for the handshake
func (c Config) Credentials() connection.Credentials {
	return connection.Credentials{Token: c.Token, Username: c.Username}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
