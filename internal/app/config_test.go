package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/marquee/internal/app"
	"github.com/tokmz/marquee/pkg/config"
	"github.com/tokmz/marquee/pkg/errors"
)

const testSecret = "marquee-test-secret-0123456789abcdef"

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("MARQUEE_AUTH_SECRET", testSecret)
	t.Setenv("MARQUEE_SOCKET_PING_INTERVAL", "10s")
	t.Setenv("MARQUEE_BROKER_DRIVER", "noop")

	cfg, src, err := app.Load("")
	require.NoError(t, err)
	t.Cleanup(src.Close)

	assert.Equal(t, "marquee", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/socket", cfg.Socket.Path)
	assert.Equal(t, 10*time.Second, cfg.Socket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Socket.PongTimeout)
	assert.Equal(t, testSecret, cfg.Auth.Secret)
	assert.False(t, cfg.Auth.AllowIssue)
	assert.Equal(t, "@every 1m", cfg.Jobs.RoomSweep)
	assert.Equal(t, 3*time.Second, cfg.Broker.PublishTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, src.File())

	settings := src.Settings()
	require.Contains(t, settings, "socket")
	assert.Equal(t, "10s", settings["socket"].(map[string]any)["ping_interval"])
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marquee.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  name: marquee-staging
auth:
  secret: `+testSecret+`
log:
  level: debug
socket:
  path: /ws
  allowed_origins: ["https://app.example.com"]
`), 0o600))

	cfg, src, err := app.Load(path)
	require.NoError(t, err)
	t.Cleanup(src.Close)

	assert.Equal(t, path, src.File())
	assert.Equal(t, "marquee-staging", cfg.App.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/ws", cfg.Socket.Path)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Socket.AllowedOrigins)
	assert.Equal(t, 10000, cfg.Socket.MaxConnections, "unset keys keep defaults")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "short secret", env: map[string]string{"MARQUEE_AUTH_SECRET": "short"}},
		{name: "relative socket path", env: map[string]string{"MARQUEE_AUTH_SECRET": testSecret, "MARQUEE_SOCKET_PATH": "socket"}},
		{name: "pong before ping", env: map[string]string{"MARQUEE_AUTH_SECRET": testSecret, "MARQUEE_SOCKET_PONG_TIMEOUT": "1s"}},
		{name: "unknown broker", env: map[string]string{"MARQUEE_AUTH_SECRET": testSecret, "MARQUEE_BROKER_DRIVER": "nats"}},
		{name: "bad log level", env: map[string]string{"MARQUEE_AUTH_SECRET": testSecret, "MARQUEE_LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MARQUEE_AUTH_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := app.Load("")
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrConfigInvalid), err.Error())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := app.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateCORSCredentials(t *testing.T) {
	t.Setenv("MARQUEE_AUTH_SECRET", testSecret)
	cfg, src, err := app.Load("")
	require.NoError(t, err)
	t.Cleanup(src.Close)

	cfg.HTTP.CORS.AllowCredentials = true
	cfg.HTTP.CORS.AllowOrigins = []string{"*"}
	assert.ErrorContains(t, cfg.Validate(), "allow_credentials")

	cfg.HTTP.CORS.AllowOrigins = []string{"https://app.example.com"}
	assert.NoError(t, cfg.Validate())
}

func TestLogSectionLoggerConfig(t *testing.T) {
	lc, err := app.LogSection{Level: "warn", Format: "console", File: "/var/log/marquee.log", MaxSize: 50}.LoggerConfig()
	require.NoError(t, err)
	require.NotNil(t, lc.Rotate)
	assert.Equal(t, "/var/log/marquee.log", lc.Rotate.Filename)
	assert.Equal(t, 50, lc.Rotate.MaxSize)

	_, err = app.LogSection{Level: "verbose"}.LoggerConfig()
	assert.Error(t, err)
}
