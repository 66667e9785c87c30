package clientconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GAME_SERVER_URL", "GAME_AUTH_TOKEN", "GAME_USERNAME",
		"RECONNECT_BASE_DELAY_MS", "RECONNECT_MAX_ATTEMPTS", "WRITE_TIMEOUT_MS",
		"STATUS_ADDR", "NATS_URL", "TELEMETRY_SUBJECT", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, events.DefaultCardID, cfg.DefaultCard().ID)

	conn := cfg.ConnectionConfig()
	assert.Equal(t, time.Second, conn.BaseDelay)
	assert.Equal(t, 5, conn.MaxReconnectAttempts)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
endpoint: wss://play.example.com/ws
username: ana
reconnect:
  base_delay_ms: 250
  max_attempts: 8
turn:
  default_card_id: pass
  default_card_name: Pass
telemetry:
  url: nats://localhost:4222
`)
	t.Setenv("GAME_AUTH_TOKEN", "secret")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "2")
	t.Setenv("STATUS_ADDR", ":7070")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "wss://play.example.com/ws", cfg.Endpoint)
	assert.Equal(t, "ana", cfg.Username)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, 250, cfg.Reconnect.BaseDelayMS)
	assert.Equal(t, 2, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, ":7070", cfg.Status.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.Telemetry.URL)
	assert.Equal(t, "cardduel.client", cfg.Telemetry.Subject)
	assert.Equal(t, events.Card{ID: "pass", Name: "Pass"}, cfg.DefaultCard())
	assert.Equal(t, "secret", cfg.Credentials().Token)
}

func TestLoad_IgnoresMalformedIntegers(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECONNECT_BASE_DELAY_MS", "soon")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Reconnect.BaseDelayMS)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "endpoint: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"http endpoint", func(c *Config) { c.Endpoint = "http://localhost/ws" }, "scheme must be ws or wss"},
		{"zero base delay", func(c *Config) { c.Reconnect.BaseDelayMS = 0 }, "base delay must be positive"},
		{"negative attempts", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, "must not be negative"},
		{"zero attempts allowed", func(c *Config) { c.Reconnect.MaxAttempts = 0 }, ""},
		{"missing default card", func(c *Config) { c.Turn.DefaultCardID = "" }, "default card id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
